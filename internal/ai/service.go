package ai

import (
	"fmt"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
)

// NewAnonymizer creates the anonymizer named by cfg.Provider. It returns
// nil and no error when anonymization is disabled or has no credential, so
// requests degrade to unanonymized patterns instead of failing.
func NewAnonymizer(cfg config.AnonymizerConfig, logger *errors.Logger) (Anonymizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	logger.Debug("Initializing anonymizer",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"temperature", cfg.Temperature,
		"timeout", cfg.Timeout,
		"max_retries", cfg.MaxRetries,
		"use_system_prompts", cfg.UseSystemPrompts)

	switch cfg.Provider {
	case "gemini":
		if cfg.APIKey == "" {
			logger.Warn("Anonymizer API key is not configured, examples will not be anonymized",
				"provider", cfg.Provider)
			return nil, nil
		}
		a, err := NewGeminiAnonymizer(cfg, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported anonymizer provider: %s", cfg.Provider), nil)
	}
}
