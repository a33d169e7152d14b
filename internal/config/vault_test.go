package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"cohortlens/internal/errors"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretReader struct {
	secrets map[string]*VaultSecret
	reads   map[string]int
}

func (f *fakeSecretReader) GetSecretV2(path string) (*VaultSecret, error) {
	if f.reads == nil {
		f.reads = make(map[string]int)
	}
	f.reads[path]++
	secret, ok := f.secrets[path]
	if !ok {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	return secret, nil
}

func TestParseVersionValue(t *testing.T) {
	tests := []struct {
		name        string
		input       any
		expected    int64
		expectError bool
	}{
		{name: "int64 value", input: int64(42), expected: 42},
		{name: "float64 value", input: float64(42.0), expected: 42},
		{name: "string value", input: "42", expected: 42},
		{name: "invalid string value", input: "not-a-number", expectError: true},
		{name: "unsupported type", input: []string{"42"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseVersionValue(tt.input, "secret/data/test")
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDecodeKVv2(t *testing.T) {
	t.Run("valid secret", func(t *testing.T) {
		secret := &api.Secret{Data: map[string]any{
			"data":     map[string]any{"api_key": "abc"},
			"metadata": map[string]any{"version": "3"},
		}}
		decoded, err := decodeKVv2(secret, "secret/data/anonymizer")
		require.NoError(t, err)
		assert.Equal(t, int64(3), decoded.Version)
		value, err := decoded.String("api_key")
		require.NoError(t, err)
		assert.Equal(t, "abc", value)
	})

	t.Run("nil secret", func(t *testing.T) {
		_, err := decodeKVv2(nil, "secret/data/missing")
		assert.ErrorContains(t, err, "secret not found")
	})

	t.Run("missing data envelope", func(t *testing.T) {
		secret := &api.Secret{Data: map[string]any{"api_key": "abc"}}
		_, err := decodeKVv2(secret, "secret/data/v1")
		assert.ErrorContains(t, err, "missing 'data' field")
	})

	t.Run("missing metadata", func(t *testing.T) {
		secret := &api.Secret{Data: map[string]any{"data": map[string]any{}}}
		_, err := decodeKVv2(secret, "secret/data/v1")
		assert.ErrorContains(t, err, "missing 'metadata' field")
	})
}

func TestVaultSecretString(t *testing.T) {
	secret := &VaultSecret{Data: map[string]any{"dsn": "postgres://x", "port": 5432}}

	value, err := secret.String("dsn")
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", value)

	_, err = secret.String("port")
	assert.ErrorContains(t, err, "not a string")

	_, err = secret.String("missing")
	assert.ErrorContains(t, err, "not found")
}

func TestApplySecrets(t *testing.T) {
	reader := &fakeSecretReader{secrets: map[string]*VaultSecret{
		"secret/data/api":   {Data: map[string]any{"keys": "k1, k2,k3"}, Version: 1},
		"secret/data/gen":   {Data: map[string]any{"api_key": "gemini-key"}, Version: 2},
		"secret/data/db":    {Data: map[string]any{"dsn": "postgres://user:pw@db/cohorts"}, Version: 1},
		"secret/data/redis": {Data: map[string]any{"password": "hunter2"}, Version: 1},
		"secret/data/tls":   {Data: map[string]any{"cert": "CERT", "key": "KEY"}, Version: 5},
	}}

	cfg := Default()
	cfg.Vault.Secrets = VaultSecrets{
		APIKeys:       "secret/data/api",
		AnonymizerKey: "secret/data/gen",
		CorpusDSN:     "secret/data/db",
		RedisPassword: "secret/data/redis",
		TLSCerts:      "secret/data/tls",
	}

	err := applySecrets(reader, cfg, errors.Discard())
	require.NoError(t, err)

	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.Server.APIKeys)
	assert.Equal(t, "gemini-key", cfg.Anonymizer.APIKey)
	assert.Equal(t, "postgres://user:pw@db/cohorts", cfg.Corpus.DSN)
	assert.Equal(t, "hunter2", cfg.Cache.Redis.Password)
	assert.Equal(t, "CERT", cfg.Server.TLS.CertContent)
	assert.Equal(t, "KEY", cfg.Server.TLS.KeyContent)
	assert.Empty(t, cfg.Server.TLS.CAContent, "absent CA field should be skipped")
	assert.Equal(t, 1, reader.reads["secret/data/tls"], "each path should be read once")
}

func TestApplySecretsSkipsUnconfiguredPaths(t *testing.T) {
	reader := &fakeSecretReader{}
	cfg := Default()
	cfg.Anonymizer.APIKey = "from-config"

	require.NoError(t, applySecrets(reader, cfg, nil))
	assert.Equal(t, "from-config", cfg.Anonymizer.APIKey)
	assert.Empty(t, reader.reads)
}

func TestApplySecretsReadFailure(t *testing.T) {
	reader := &fakeSecretReader{}
	cfg := Default()
	cfg.Vault.Secrets.CorpusDSN = "secret/data/missing"

	err := applySecrets(reader, cfg, errors.Discard())
	assert.ErrorContains(t, err, "corpus DSN")
}

func TestResolveVaultToken(t *testing.T) {
	tempDir := t.TempDir()
	tokenFile := filepath.Join(tempDir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("  s.file-token\n"), 0600))

	tests := []struct {
		name        string
		config      VaultConfig
		expected    string
		expectError bool
	}{
		{name: "inline token wins", config: VaultConfig{Token: "s.inline", TokenFile: tokenFile}, expected: "s.inline"},
		{name: "token file trimmed", config: VaultConfig{TokenFile: tokenFile}, expected: "s.file-token"},
		{name: "missing token file", config: VaultConfig{TokenFile: filepath.Join(tempDir, "nope")}, expectError: true},
		{name: "no token at all", config: VaultConfig{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := resolveVaultToken(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, token)
		})
	}
}

func TestApplyVaultSecretsDisabled(t *testing.T) {
	cfg := Default()
	cfg.Vault.Enabled = false
	assert.NoError(t, ApplyVaultSecrets(cfg, errors.Discard()))
}

func TestGetSecretV2NilClient(t *testing.T) {
	var vc *VaultClient
	_, err := vc.GetSecretV2("secret/data/x")
	assert.ErrorContains(t, err, "not initialized")
}
