package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
// Secret precedence order:
// 1. Vault (if configured) - Highest priority
// 2. Config File values
// 3. Environment Variables (COHORTLENS_ANONYMIZER_APIKEY, etc.), including a local .env file
// 4. Default values - Lowest priority
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Normalizer    NormalizerConfig    `mapstructure:"normalizer"`
	Anonymizer    AnonymizerConfig    `mapstructure:"anonymizer"`
	Corpus        CorpusConfig        `mapstructure:"corpus"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Recommend     RecommendConfig     `mapstructure:"recommend"`
	Server        ServerConfig        `mapstructure:"server"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	LogLevel         string   `mapstructure:"logLevel"`
	DefaultFormat    string   `mapstructure:"defaultFormat"`
	SupportedFormats []string `mapstructure:"supportedFormats"`
	MaxFileSize      int64    `mapstructure:"maxFileSize"`
}

// EngineConfig holds the tunable thresholds of the analytics pipeline.
// These values were tuned empirically and are exposed so operators can adjust them.
type EngineConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarityThreshold"` // Minimum title similarity for cohort inclusion
	PrefixMinLength     int     `mapstructure:"prefixMinLength"`     // Shortest accepted activity prefix
	PrefixMaxLength     int     `mapstructure:"prefixMaxLength"`     // Longest accepted activity prefix
	MinMentionLength    int     `mapstructure:"minMentionLength"`    // Shortest accepted excerpt after trimming
	TopPatterns         int     `mapstructure:"topPatterns"`         // Cap on aggregated patterns
	MaxExamples         int     `mapstructure:"maxExamples"`         // Cap on examples per pattern
	MinExamples         int     `mapstructure:"minExamples"`         // Below this, synthetic examples are added
	TopKeywords         int     `mapstructure:"topKeywords"`         // Keywords kept per pattern
	SynthesizeExamples  bool    `mapstructure:"synthesizeExamples"`  // Enables the template fallback
	CorpusLimit         int     `mapstructure:"corpusLimit"`         // Records considered per query
	TopAttributes       int     `mapstructure:"topAttributes"`       // Schools, majors, certificates, skills kept
	RulesFile           string  `mapstructure:"rulesFile"`           // Optional YAML overlay for the rule pack
}

// NormalizerConfig holds the numeric scales used by the attribute normalizer
type NormalizerConfig struct {
	ReferenceScale float64 `mapstructure:"referenceScale"`
	TestScoreMin   int     `mapstructure:"testScoreMin"`
	TestScoreMax   int     `mapstructure:"testScoreMax"`
}

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`          // Whether circuit breaker is enabled
	MaxRequests      uint32        `mapstructure:"maxRequests"`      // Max requests allowed when half-open
	Interval         time.Duration `mapstructure:"interval"`         // Interval to clear counts
	Timeout          time.Duration `mapstructure:"timeout"`          // Timeout for half-open to open
	MinRequests      uint32        `mapstructure:"minRequests"`      // Minimum requests before tripping
	FailureThreshold float64       `mapstructure:"failureThreshold"` // Failure ratio threshold (0.0-1.0)
}

// AnonymizerConfig holds configuration for the generative-text anonymizer
type AnonymizerConfig struct {
	Enabled          bool                 `mapstructure:"enabled"`
	Provider         string               `mapstructure:"provider"`
	Model            string               `mapstructure:"model"`
	APIKey           string               `mapstructure:"apiKey"`
	Timeout          time.Duration        `mapstructure:"timeout"`
	MaxRetries       int                  `mapstructure:"maxRetries"`
	Temperature      float32              `mapstructure:"temperature"`
	UseSystemPrompts bool                 `mapstructure:"useSystemPrompts"`
	MaxPatterns      int                  `mapstructure:"maxPatterns"`
	MaxExamples      int                  `mapstructure:"maxExamples"`
	Prompts          PromptConfig         `mapstructure:"prompts"`
	CircuitBreaker   CircuitBreakerConfig `mapstructure:"circuitBreaker"`
}

// PromptConfig holds inline prompts or files to load them from
type PromptConfig struct {
	System     string `mapstructure:"system"`
	SystemFile string `mapstructure:"systemFile"`
	User       string `mapstructure:"user"`
	UserFile   string `mapstructure:"userFile"`
}

// CorpusConfig selects and configures the source of cohort records
type CorpusConfig struct {
	Source string `mapstructure:"source"` // "file" or "postgres"
	Path   string `mapstructure:"path"`   // JSON file for the file source
	Watch  bool   `mapstructure:"watch"`  // Reload the file source on change
	DSN    string `mapstructure:"dsn"`    // Connection string for the postgres source
	Table  string `mapstructure:"table"`
	Limit  int    `mapstructure:"limit"`
}

// CacheConfig configures the recommendation result cache
type CacheConfig struct {
	Backend      string        `mapstructure:"backend"` // "memory", "sqlite" or "redis"
	TTL          time.Duration `mapstructure:"ttl"`
	PrefixLength int           `mapstructure:"prefixLength"`
	SQLitePath   string        `mapstructure:"sqlitePath"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RecommendConfig configures the interactive recommendation layer
type RecommendConfig struct {
	MaxResults       int           `mapstructure:"maxResults"`
	MinInputLength   int           `mapstructure:"minInputLength"`
	Debounce         time.Duration `mapstructure:"debounce"`
	UseAnonymization bool          `mapstructure:"useAnonymization"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	MaxRequestSize int64         `mapstructure:"maxRequestSize"`

	// TLS Configuration
	TLS TLSConfig `mapstructure:"tls"`

	// API Authentication
	APIKeys []string `mapstructure:"apiKeys"` // Valid API keys for authentication

	// Rate Limiting Configuration
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled        bool          `mapstructure:"enabled"`        // Enable/disable rate limiting
	RequestsPerMin int           `mapstructure:"requestsPerMin"` // Requests allowed per minute
	BurstCapacity  int           `mapstructure:"burstCapacity"`  // Burst capacity for token bucket
	ByIP           bool          `mapstructure:"byIP"`           // Enable per-IP rate limiting
	ByAPIKey       bool          `mapstructure:"byAPIKey"`       // Enable per-API-key rate limiting
	Window         time.Duration `mapstructure:"window"`         // Rate limiting window duration
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Enabled         bool                `mapstructure:"enabled"`
	ServiceName     string              `mapstructure:"serviceName"`
	ServiceVersion  string              `mapstructure:"serviceVersion"`
	ServiceInstance string              `mapstructure:"serviceInstance"`
	ConsoleOutput   bool                `mapstructure:"consoleOutput"`
	SampleRate      float64             `mapstructure:"sampleRate"`
	Metrics         MetricsConfig       `mapstructure:"metrics"`
	CustomMetrics   CustomMetricsConfig `mapstructure:"customMetrics"`
	Console         ConsoleConfig       `mapstructure:"console"`
	Prometheus      PrometheusConfig    `mapstructure:"prometheus"`
	OTLP            OTLPConfig          `mapstructure:"otlp"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CollectionInterval time.Duration `mapstructure:"collectionInterval"`
}

// ConsoleConfig holds console output configuration
type ConsoleConfig struct {
	PrettyPrint bool `mapstructure:"prettyPrint"`
}

// CustomMetricsConfig holds fine-grained custom metrics configuration
type CustomMetricsConfig struct {
	Pipeline       bool `mapstructure:"pipeline"`
	Anonymizer     bool `mapstructure:"anonymizer"`
	TrackTokens    bool `mapstructure:"trackTokens"`
	Infrastructure bool `mapstructure:"infrastructure"`
}

// PrometheusConfig holds Prometheus configuration
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Port     string `mapstructure:"port"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Headers  map[string]string `mapstructure:"headers"`
}

// LoadConfig loads configuration from a .env file, environment variables and a config file
func LoadConfig() (*Config, error) {
	// A missing .env file is the normal case outside local development
	if err := godotenv.Load(); err == nil {
		log.Println("[CONFIG] Loaded environment overrides from .env")
	}

	v := newViper()

	configFileUsed := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Println("[CONFIG] No config file found, using defaults and environment variables")
	} else {
		configFileUsed = v.ConfigFileUsed()
		log.Printf("[CONFIG] Successfully loaded config file: %s", configFileUsed)
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}

	config.logConfigurationSources(configFileUsed)

	if err := config.loadPromptFiles(); err != nil {
		return nil, fmt.Errorf("failed to load anonymizer prompts: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigFile loads configuration from an explicit file path, skipping the search paths
func LoadConfigFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := config.loadPromptFiles(); err != nil {
		return nil, fmt.Errorf("failed to load anonymizer prompts: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Default returns the configuration built from defaults only
func Default() *Config {
	config, err := decode(newViper())
	if err != nil {
		// Defaults always decode; a failure here is a programming error
		panic(err)
	}
	return config
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COHORTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/cohortlens/")
	v.AddConfigPath("$HOME/.cohortlens")
	v.AddConfigPath(".")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.applyFallbacks()
	return &config, nil
}
