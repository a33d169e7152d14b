package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTLSConfig(t *testing.T) {
	tests := []struct {
		name        string
		tls         TLSConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "disabled mode",
			tls:  TLSConfig{Mode: "disabled"},
		},
		{
			name: "empty mode treated as disabled",
			tls:  TLSConfig{},
		},
		{
			name: "server mode with files",
			tls:  TLSConfig{Mode: "server", CertFile: "/path/to/cert.pem", KeyFile: "/path/to/key.pem"},
		},
		{
			name: "server mode with vault content",
			tls:  TLSConfig{Mode: "server", CertContent: "-----BEGIN CERTIFICATE-----", KeyContent: "-----BEGIN KEY-----"},
		},
		{
			name:        "server mode missing key",
			tls:         TLSConfig{Mode: "server", CertFile: "/path/to/cert.pem"},
			expectError: true,
			errorMsg:    "certificate and key are required",
		},
		{
			name: "mutual mode valid",
			tls: TLSConfig{
				Mode:     "mutual",
				CertFile: "/path/to/cert.pem",
				KeyFile:  "/path/to/key.pem",
				CAFile:   "/path/to/ca.pem",
			},
		},
		{
			name:        "mutual mode missing CA",
			tls:         TLSConfig{Mode: "mutual", CertFile: "/path/to/cert.pem", KeyFile: "/path/to/key.pem"},
			expectError: true,
			errorMsg:    "CA certificate is required",
		},
		{
			name: "mutual mode bad client auth policy",
			tls: TLSConfig{
				Mode:             "mutual",
				CertFile:         "/path/to/cert.pem",
				KeyFile:          "/path/to/key.pem",
				CAFile:           "/path/to/ca.pem",
				ClientAuthPolicy: "sometimes",
			},
			expectError: true,
			errorMsg:    "invalid clientAuthPolicy",
		},
		{
			name:        "invalid mode",
			tls:         TLSConfig{Mode: "invalid"},
			expectError: true,
			errorMsg:    "invalid TLS mode: invalid",
		},
		{
			name:        "invalid min version",
			tls:         TLSConfig{Mode: "disabled", MinVersion: "1.0"},
			expectError: true,
			errorMsg:    "invalid TLS minVersion",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{TLS: tt.tls}}
			err := cfg.ValidateTLSConfig()

			if tt.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTLSConfigEnabled(t *testing.T) {
	assert.False(t, TLSConfig{Mode: "disabled"}.Enabled())
	assert.False(t, TLSConfig{}.Enabled())
	assert.True(t, TLSConfig{Mode: "server"}.Enabled())
	assert.True(t, TLSConfig{Mode: "mutual"}.Enabled())
}
