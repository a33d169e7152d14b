package config

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// App Configuration
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.defaultFormat", "json")
	v.SetDefault("app.supportedFormats", []string{"json", "text", "markdown"})
	v.SetDefault("app.maxFileSize", 32*1024*1024) // 32MB corpus files

	// Engine thresholds
	v.SetDefault("engine.similarityThreshold", 50.0)
	v.SetDefault("engine.prefixMinLength", 2)
	v.SetDefault("engine.prefixMaxLength", 15)
	v.SetDefault("engine.minMentionLength", 15)
	v.SetDefault("engine.topPatterns", 30)
	v.SetDefault("engine.maxExamples", 5)
	v.SetDefault("engine.minExamples", 4)
	v.SetDefault("engine.topKeywords", 5)
	v.SetDefault("engine.synthesizeExamples", true)
	v.SetDefault("engine.corpusLimit", 1000)
	v.SetDefault("engine.topAttributes", 10)
	v.SetDefault("engine.rulesFile", "")

	// Normalizer
	v.SetDefault("normalizer.referenceScale", 4.5)
	v.SetDefault("normalizer.testScoreMin", 300)
	v.SetDefault("normalizer.testScoreMax", 990)

	// Anonymizer
	v.SetDefault("anonymizer.enabled", true)
	v.SetDefault("anonymizer.provider", "gemini")
	v.SetDefault("anonymizer.model", "gemini-2.0-flash")
	v.SetDefault("anonymizer.apiKey", "")
	v.SetDefault("anonymizer.timeout", 20*time.Second)
	v.SetDefault("anonymizer.maxRetries", 2)
	v.SetDefault("anonymizer.temperature", 0.4)
	v.SetDefault("anonymizer.useSystemPrompts", true)
	v.SetDefault("anonymizer.maxPatterns", 10)
	v.SetDefault("anonymizer.maxExamples", 5)
	v.SetDefault("anonymizer.circuitBreaker.enabled", true)
	v.SetDefault("anonymizer.circuitBreaker.maxRequests", 3)
	v.SetDefault("anonymizer.circuitBreaker.interval", 60*time.Second)
	v.SetDefault("anonymizer.circuitBreaker.timeout", 60*time.Second)
	v.SetDefault("anonymizer.circuitBreaker.minRequests", 3)
	v.SetDefault("anonymizer.circuitBreaker.failureThreshold", 0.6)

	// Corpus
	v.SetDefault("corpus.source", "file")
	v.SetDefault("corpus.path", "corpus.json")
	v.SetDefault("corpus.watch", false)
	v.SetDefault("corpus.dsn", "")
	v.SetDefault("corpus.table", "cohort_records")
	v.SetDefault("corpus.limit", 1000)

	// Cache
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.prefixLength", 100)
	v.SetDefault("cache.sqlitePath", "cohortlens-cache.db")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "cohortlens:rec:")

	// Recommendations
	v.SetDefault("recommend.maxResults", 6)
	v.SetDefault("recommend.minInputLength", 10)
	v.SetDefault("recommend.debounce", 500*time.Millisecond)
	v.SetDefault("recommend.useAnonymization", false)

	// Server Configuration
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second) // Anonymized stats may wait on the anonymizer
	v.SetDefault("server.idleTimeout", 120*time.Second)
	v.SetDefault("server.maxRequestSize", 1024*1024)
	v.SetDefault("server.tls.mode", "disabled") // disabled, server, mutual
	v.SetDefault("server.tls.certFile", "")
	v.SetDefault("server.tls.keyFile", "")
	v.SetDefault("server.tls.caFile", "")
	v.SetDefault("server.tls.minVersion", "1.2")
	v.SetDefault("server.tls.clientAuthPolicy", "require")
	v.SetDefault("server.apiKeys", []string{})
	v.SetDefault("server.rateLimit.enabled", false)
	v.SetDefault("server.rateLimit.requestsPerMin", 120)
	v.SetDefault("server.rateLimit.burstCapacity", 20)
	v.SetDefault("server.rateLimit.byIP", true)
	v.SetDefault("server.rateLimit.byAPIKey", false)
	v.SetDefault("server.rateLimit.window", time.Minute)

	// Vault Configuration
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.tokenFile", "")
	v.SetDefault("vault.namespace", "")
	v.SetDefault("vault.secrets.apiKeys", "")
	v.SetDefault("vault.secrets.anonymizerKey", "")
	v.SetDefault("vault.secrets.corpusDSN", "")
	v.SetDefault("vault.secrets.redisPassword", "")
	v.SetDefault("vault.secrets.tlsCerts", "")

	// Observability Configuration
	v.SetDefault("observability.enabled", true)
	v.SetDefault("observability.serviceName", "cohortlens")
	v.SetDefault("observability.serviceVersion", "")  // Will use app version if empty
	v.SetDefault("observability.serviceInstance", "") // Will be auto-generated if empty
	v.SetDefault("observability.consoleOutput", false)
	v.SetDefault("observability.sampleRate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.collectionInterval", 15*time.Second)
	v.SetDefault("observability.customMetrics.pipeline", true)
	v.SetDefault("observability.customMetrics.anonymizer", true)
	v.SetDefault("observability.customMetrics.trackTokens", true)
	v.SetDefault("observability.customMetrics.infrastructure", true)
	v.SetDefault("observability.console.prettyPrint", true)
	v.SetDefault("observability.prometheus.enabled", true)
	v.SetDefault("observability.prometheus.endpoint", "/metrics")
	v.SetDefault("observability.prometheus.port", "9090")
	v.SetDefault("observability.otlp.enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4318")
	v.SetDefault("observability.otlp.insecure", true)
	v.SetDefault("observability.otlp.headers", map[string]string{})
}
