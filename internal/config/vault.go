package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"cohortlens/internal/errors"

	"github.com/hashicorp/vault/api"
)

// VaultConfig holds Vault connection configuration
type VaultConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"tokenFile"`
	Namespace string `mapstructure:"namespace"`

	Secrets VaultSecrets `mapstructure:"secrets"`
}

// VaultSecrets defines where to find secrets in Vault (KVv2 data paths)
type VaultSecrets struct {
	APIKeys       string `mapstructure:"apiKeys"`       // key "keys", comma-separated
	AnonymizerKey string `mapstructure:"anonymizerKey"` // key "api_key"
	CorpusDSN     string `mapstructure:"corpusDSN"`     // key "dsn"
	RedisPassword string `mapstructure:"redisPassword"` // key "password"
	TLSCerts      string `mapstructure:"tlsCerts"`      // keys "cert", "key", "ca"
}

// VaultClient wraps the Vault API client
type VaultClient struct {
	client *api.Client
	logger *errors.Logger
}

// VaultSecret represents a secret read from Vault's KVv2 engine.
type VaultSecret struct {
	Data    map[string]any
	Version int64
}

// NewVaultClient creates a new Vault client from configuration.
// It returns a nil client when Vault is disabled.
func NewVaultClient(config VaultConfig, logger *errors.Logger) (*VaultClient, error) {
	if !config.Enabled {
		logger.Debug("Vault integration disabled")
		return nil, nil
	}

	apiConfig := api.DefaultConfig()
	if config.Address != "" {
		apiConfig.Address = config.Address
	}
	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	token, err := resolveVaultToken(config)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	health, err := client.Sys().Health()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}
	logger.Info("Connected to Vault",
		"address", apiConfig.Address,
		"version", health.Version,
		"sealed", health.Sealed)

	return &VaultClient{client: client, logger: logger}, nil
}

// resolveVaultToken resolves the Vault token from config or file
func resolveVaultToken(config VaultConfig) (string, error) {
	token := config.Token
	if token == "" && config.TokenFile != "" {
		tokenBytes, err := os.ReadFile(config.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read vault token file: %w", err)
		}
		token = strings.TrimSpace(string(tokenBytes))
	}
	if token == "" {
		return "", fmt.Errorf("vault token is required when vault is enabled")
	}
	return token, nil
}

// GetSecretV2 retrieves a secret from a Vault KVv2 store.
func (vc *VaultClient) GetSecretV2(path string) (*VaultSecret, error) {
	if vc == nil {
		return nil, fmt.Errorf("vault client not initialized")
	}

	secret, err := vc.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	return decodeKVv2(secret, path)
}

// decodeKVv2 unpacks the data and metadata envelopes of a KVv2 read
func decodeKVv2(secret *api.Secret, path string) (*VaultSecret, error) {
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret not found at path: %s", path)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'data' field)", path)
	}
	metadata, ok := secret.Data["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("secret at %s is not in KVv2 format (missing 'metadata' field)", path)
	}
	versionRaw, ok := metadata["version"]
	if !ok {
		return nil, fmt.Errorf("secret metadata at %s is missing 'version' field", path)
	}
	version, err := parseVersionValue(versionRaw, path)
	if err != nil {
		return nil, err
	}
	return &VaultSecret{Data: data, Version: version}, nil
}

// parseVersionValue parses version value from the types the API may decode it as
func parseVersionValue(versionRaw any, path string) (int64, error) {
	switch v := versionRaw.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		version, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse secret version at %s: %w", path, err)
		}
		return version, nil
	default:
		return 0, fmt.Errorf("unexpected type for version at %s: %T", path, versionRaw)
	}
}

// String returns a string field of the secret
func (s *VaultSecret) String(key string) (string, error) {
	value, ok := s.Data[key]
	if !ok {
		return "", fmt.Errorf("key '%s' not found in secret", key)
	}
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("value for key '%s' is not a string", key)
	}
	return str, nil
}

// secretBinding maps one Vault secret field onto the configuration
type secretBinding struct {
	name  string
	path  func(VaultSecrets) string
	key   string
	apply func(c *Config, value string)
}

var secretBindings = []secretBinding{
	{
		name: "server API keys",
		path: func(s VaultSecrets) string { return s.APIKeys },
		key:  "keys",
		apply: func(c *Config, value string) {
			c.Server.APIKeys = splitAndTrim(value)
		},
	},
	{
		name:  "anonymizer API key",
		path:  func(s VaultSecrets) string { return s.AnonymizerKey },
		key:   "api_key",
		apply: func(c *Config, value string) { c.Anonymizer.APIKey = value },
	},
	{
		name:  "corpus DSN",
		path:  func(s VaultSecrets) string { return s.CorpusDSN },
		key:   "dsn",
		apply: func(c *Config, value string) { c.Corpus.DSN = value },
	},
	{
		name:  "redis password",
		path:  func(s VaultSecrets) string { return s.RedisPassword },
		key:   "password",
		apply: func(c *Config, value string) { c.Cache.Redis.Password = value },
	},
	{
		name:  "TLS certificate",
		path:  func(s VaultSecrets) string { return s.TLSCerts },
		key:   "cert",
		apply: func(c *Config, value string) { c.Server.TLS.CertContent = value },
	},
	{
		name:  "TLS private key",
		path:  func(s VaultSecrets) string { return s.TLSCerts },
		key:   "key",
		apply: func(c *Config, value string) { c.Server.TLS.KeyContent = value },
	},
	{
		name:  "TLS CA certificate",
		path:  func(s VaultSecrets) string { return s.TLSCerts },
		key:   "ca",
		apply: func(c *Config, value string) { c.Server.TLS.CAContent = value },
	},
}

// secretReader is the part of VaultClient used to apply secrets
type secretReader interface {
	GetSecretV2(path string) (*VaultSecret, error)
}

// ApplyVaultSecrets loads secrets from Vault and applies them to the config
func ApplyVaultSecrets(config *Config, logger *errors.Logger) error {
	if !config.Vault.Enabled {
		logger.Debug("Vault integration disabled, skipping secret loading")
		return nil
	}

	client, err := NewVaultClient(config.Vault, logger)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize vault client", err)
	}
	return applySecrets(client, config, logger)
}

// applySecrets reads each configured secret path once and applies its bound fields
func applySecrets(reader secretReader, config *Config, logger *errors.Logger) error {
	cache := make(map[string]*VaultSecret)
	applied := 0

	for _, binding := range secretBindings {
		path := binding.path(config.Vault.Secrets)
		if path == "" {
			continue
		}

		secret, ok := cache[path]
		if !ok {
			var err error
			secret, err = reader.GetSecretV2(path)
			if err != nil {
				return fmt.Errorf("failed to load %s from vault: %w", binding.name, err)
			}
			cache[path] = secret
		}

		value, err := secret.String(binding.key)
		if err != nil || value == "" {
			// Optional fields such as the CA may be absent
			logger.Debug("Vault secret field not set", "secret", binding.name, "path", path, "key", binding.key)
			continue
		}

		binding.apply(config, value)
		applied++
		logger.Info("Secret loaded from Vault", "secret", binding.name, "path", path, "version", secret.Version)
	}

	logger.Info("Finished applying secrets from Vault", "applied", applied)
	return nil
}
