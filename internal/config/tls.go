package config

import "fmt"

// TLSConfig holds TLS configuration for the HTTP server
type TLSConfig struct {
	Mode             string `mapstructure:"mode"` // disabled, server, mutual
	CertFile         string `mapstructure:"certFile"`
	KeyFile          string `mapstructure:"keyFile"`
	CAFile           string `mapstructure:"caFile"`
	MinVersion       string `mapstructure:"minVersion"`       // 1.2 or 1.3
	ClientAuthPolicy string `mapstructure:"clientAuthPolicy"` // require, request, verify

	// PEM content loaded from Vault, used in place of the files
	CertContent string `mapstructure:"-"`
	KeyContent  string `mapstructure:"-"`
	CAContent   string `mapstructure:"-"`
}

// Enabled reports whether the server should terminate TLS
func (t TLSConfig) Enabled() bool {
	return t.Mode == "server" || t.Mode == "mutual"
}

// ValidateTLSConfig validates the TLS configuration
func (c *Config) ValidateTLSConfig() error {
	tls := c.Server.TLS

	switch tls.MinVersion {
	case "", "1.2", "1.3":
	default:
		return fmt.Errorf("invalid TLS minVersion: %s (must be '1.2' or '1.3')", tls.MinVersion)
	}

	switch tls.Mode {
	case "", "disabled":
		return nil
	case "server":
		return requirePair(tls.CertFile, tls.CertContent, tls.KeyFile, tls.KeyContent, tls.Mode)
	case "mutual":
		if err := requirePair(tls.CertFile, tls.CertContent, tls.KeyFile, tls.KeyContent, tls.Mode); err != nil {
			return err
		}
		if tls.CAFile == "" && tls.CAContent == "" {
			return fmt.Errorf("CA certificate is required for mutual TLS mode (provide caFile or a Vault secret)")
		}
		switch tls.ClientAuthPolicy {
		case "require", "request", "verify", "":
			return nil
		default:
			return fmt.Errorf("invalid clientAuthPolicy: %s (must be 'require', 'request', or 'verify')", tls.ClientAuthPolicy)
		}
	default:
		return fmt.Errorf("invalid TLS mode: %s (must be 'disabled', 'server', or 'mutual')", tls.Mode)
	}
}

func requirePair(certFile, certContent, keyFile, keyContent, mode string) error {
	if (certFile == "" && certContent == "") || (keyFile == "" && keyContent == "") {
		return fmt.Errorf("TLS certificate and key are required for %s mode", mode)
	}
	return nil
}
