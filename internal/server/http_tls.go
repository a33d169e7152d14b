package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"cohortlens/internal/config"
)

// buildTLSConfig returns the TLS settings for the configured mode, or nil
// when TLS is disabled. PEM content loaded from Vault takes precedence over files.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	cert, err := loadServerCertificate(cfg)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.NoClientCert,
	}
	if cfg.MinVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	if cfg.Mode == "mutual" {
		pool, err := loadCAPool(cfg)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = clientAuthPolicy(cfg.ClientAuthPolicy)
	}
	return tlsConfig, nil
}

func loadServerCertificate(cfg config.TLSConfig) (tls.Certificate, error) {
	if cfg.CertContent != "" && cfg.KeyContent != "" {
		cert, err := tls.X509KeyPair([]byte(cfg.CertContent), []byte(cfg.KeyContent))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load server cert/key from content: %w", err)
		}
		return cert, nil
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load server cert/key from files: %w", err)
		}
		return cert, nil
	}
	return tls.Certificate{}, fmt.Errorf("TLS certificate and key are required (provide either files or Vault content)")
}

func loadCAPool(cfg config.TLSConfig) (*x509.CertPool, error) {
	caPEM := []byte(cfg.CAContent)
	if len(caPEM) == 0 {
		if cfg.CAFile == "" {
			return nil, fmt.Errorf("CA certificate is required for mutual TLS mode")
		}
		var err error
		if caPEM, err = os.ReadFile(cfg.CAFile); err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to append CA cert")
	}
	return pool, nil
}

func clientAuthPolicy(policy string) tls.ClientAuthType {
	switch policy {
	case "request":
		return tls.RequestClientCert
	case "verify":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}
