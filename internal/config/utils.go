package config

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strings"

	"cohortlens/internal/errors"
)

// applyFallbacks applies environment variable fallbacks and derived defaults
func (c *Config) applyFallbacks() {
	c.applyServerAPIKeyFallbacks()
	c.applyAnonymizerKeyFallback()
	c.applyTLSDefaults()
	c.applyObservabilityDefaults()

	// The engine cap follows the source limit unless set explicitly lower
	if c.Corpus.Limit > 0 && (c.Engine.CorpusLimit <= 0 || c.Corpus.Limit < c.Engine.CorpusLimit) {
		c.Engine.CorpusLimit = c.Corpus.Limit
	}
}

// applyServerAPIKeyFallbacks applies API key fallbacks from environment variables
func (c *Config) applyServerAPIKeyFallbacks() {
	// Environment values arrive as one comma-separated string
	c.Server.APIKeys = splitAndTrim(strings.Join(c.Server.APIKeys, ","))
	if len(c.Server.APIKeys) == 0 {
		if apiKeysEnv := os.Getenv("COHORTLENS_SERVER_APIKEYS"); apiKeysEnv != "" {
			c.Server.APIKeys = splitAndTrim(apiKeysEnv)
		}
	}
}

// applyAnonymizerKeyFallback accepts the provider's conventional variable
func (c *Config) applyAnonymizerKeyFallback() {
	if c.Anonymizer.APIKey == "" {
		c.Anonymizer.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// applyTLSDefaults applies default TLS configuration values
func (c *Config) applyTLSDefaults() {
	if c.Server.TLS.Mode == "" {
		c.Server.TLS.Mode = "disabled"
	}
	if c.Server.TLS.Mode == "mutual" && c.Server.TLS.ClientAuthPolicy == "" {
		c.Server.TLS.ClientAuthPolicy = "require"
	}
	if c.Server.TLS.MinVersion == "" && c.Server.TLS.Mode != "disabled" {
		c.Server.TLS.MinVersion = "1.2"
	}
}

// applyObservabilityDefaults applies default observability configuration values
func (c *Config) applyObservabilityDefaults() {
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "cohortlens"
	}
	if c.Observability.ServiceInstance == "" {
		c.Observability.ServiceInstance = generateServiceInstanceID(c.Observability.ServiceName)
	}
}

// generateServiceInstanceID generates a unique service instance ID
func generateServiceInstanceID(serviceName string) string {
	if hostname, err := os.Hostname(); err == nil {
		return fmt.Sprintf("%s-%s", serviceName, hostname)
	}
	return fmt.Sprintf("%s-1", serviceName)
}

func splitAndTrim(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for values the engine cannot run with
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if _, err := errors.New(c.App.LogLevel); err != nil {
		add("app.logLevel: %v", err)
	}
	if c.App.DefaultFormat != "" && len(c.App.SupportedFormats) > 0 && !slices.Contains(c.App.SupportedFormats, c.App.DefaultFormat) {
		add("app.defaultFormat %q is not one of %v", c.App.DefaultFormat, c.App.SupportedFormats)
	}

	e := c.Engine
	if e.SimilarityThreshold < 0 || e.SimilarityThreshold > 100 {
		add("engine.similarityThreshold must be within [0,100], got %v", e.SimilarityThreshold)
	}
	if e.PrefixMinLength < 1 || e.PrefixMaxLength < e.PrefixMinLength {
		add("engine.prefixMinLength/prefixMaxLength must satisfy 1 <= min <= max, got %d..%d", e.PrefixMinLength, e.PrefixMaxLength)
	}
	if e.MinMentionLength < 0 {
		add("engine.minMentionLength must not be negative")
	}
	if e.TopPatterns <= 0 || e.TopKeywords <= 0 || e.MaxExamples <= 0 {
		add("engine.topPatterns, topKeywords and maxExamples must be positive")
	}
	if e.MinExamples > e.MaxExamples {
		add("engine.minExamples (%d) must not exceed engine.maxExamples (%d)", e.MinExamples, e.MaxExamples)
	}

	n := c.Normalizer
	if n.ReferenceScale <= 0 {
		add("normalizer.referenceScale must be positive")
	}
	if n.TestScoreMin <= 0 || n.TestScoreMax < n.TestScoreMin {
		add("normalizer.testScoreMin/testScoreMax must satisfy 0 < min <= max")
	}

	if c.Anonymizer.Enabled {
		if c.Anonymizer.Provider != "gemini" {
			add("anonymizer.provider %q is not supported", c.Anonymizer.Provider)
		}
		if c.Anonymizer.Timeout <= 0 {
			add("anonymizer.timeout must be positive")
		}
		if cb := c.Anonymizer.CircuitBreaker; cb.Enabled && (cb.FailureThreshold <= 0 || cb.FailureThreshold > 1) {
			add("anonymizer.circuitBreaker.failureThreshold must be within (0,1]")
		}
	}

	switch c.Corpus.Source {
	case "file":
		if c.Corpus.Path == "" {
			add("corpus.path is required for the file source")
		}
	case "postgres":
		if c.Corpus.DSN == "" && c.Vault.Secrets.CorpusDSN == "" {
			add("corpus.dsn is required for the postgres source")
		}
	default:
		add("corpus.source must be 'file' or 'postgres', got %q", c.Corpus.Source)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	case "sqlite":
		if c.Cache.SQLitePath == "" {
			add("cache.sqlitePath is required for the sqlite backend")
		}
	default:
		add("cache.backend must be 'memory', 'sqlite' or 'redis', got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		add("cache.ttl must be positive")
	}

	if c.Recommend.MaxResults <= 0 {
		add("recommend.maxResults must be positive")
	}

	if err := c.ValidateTLSConfig(); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return errors.NewConfigError(errors.ErrCodeInvalidConfig, strings.Join(problems, "; "), nil)
	}
	return nil
}

// logConfigurationSources logs a summary of configuration sources being used
func (c *Config) logConfigurationSources(configFileUsed string) {
	log.Println("[CONFIG] === Configuration Sources Summary ===")

	if configFileUsed != "" {
		log.Printf("[CONFIG] Config file: %s", configFileUsed)
	} else {
		log.Println("[CONFIG] Config file: None (using defaults)")
	}

	envVars := []string{
		"COHORTLENS_ANONYMIZER_APIKEY",
		"COHORTLENS_ANONYMIZER_MODEL",
		"COHORTLENS_CORPUS_SOURCE",
		"COHORTLENS_CORPUS_DSN",
		"COHORTLENS_CACHE_BACKEND",
		"COHORTLENS_SERVER_PORT",
		"COHORTLENS_SERVER_HOST",
		"COHORTLENS_APP_LOGLEVEL",
		"COHORTLENS_VAULT_ENABLED",
		"GEMINI_API_KEY",
	}

	log.Println("[CONFIG] Environment variables:")
	hasEnvVars := false
	for _, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			lower := strings.ToLower(envVar)
			if strings.Contains(lower, "key") || strings.Contains(lower, "dsn") {
				log.Printf("[CONFIG]   %s=***MASKED***", envVar)
			} else {
				log.Printf("[CONFIG]   %s=%s", envVar, value)
			}
			hasEnvVars = true
		}
	}
	if !hasEnvVars {
		log.Println("[CONFIG]   None set")
	}

	log.Println("[CONFIG] === Key Configuration Values ===")
	log.Printf("[CONFIG] Corpus Source: %s", c.Corpus.Source)
	log.Printf("[CONFIG] Cache Backend: %s (ttl %s)", c.Cache.Backend, c.Cache.TTL)
	log.Printf("[CONFIG] Similarity Threshold: %.1f", c.Engine.SimilarityThreshold)
	log.Printf("[CONFIG] Anonymizer: enabled=%t provider=%s model=%s", c.Anonymizer.Enabled, c.Anonymizer.Provider, c.Anonymizer.Model)
	if c.Anonymizer.APIKey != "" {
		log.Println("[CONFIG] Anonymizer API Key: ***CONFIGURED***")
	} else {
		log.Println("[CONFIG] Anonymizer API Key: ***NOT SET***")
	}
	log.Printf("[CONFIG] Server: %s:%s (TLS %s)", c.Server.Host, c.Server.Port, c.Server.TLS.Mode)
	log.Printf("[CONFIG] Log Level: %s", c.App.LogLevel)
	log.Printf("[CONFIG] Vault Enabled: %t", c.Vault.Enabled)
	log.Printf("[CONFIG] Observability Enabled: %t", c.Observability.Enabled)
	log.Println("[CONFIG] =====================================")
}
