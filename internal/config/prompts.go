package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// loadPromptFiles replaces inline anonymizer prompts with the content of any
// configured prompt files. Files take precedence over inline values.
func (c *Config) loadPromptFiles() error {
	prompts := &c.Anonymizer.Prompts

	if prompts.SystemFile != "" {
		content, err := loadPromptFromFile(prompts.SystemFile, "system")
		if err != nil {
			return err
		}
		prompts.System = content
	}

	if prompts.UserFile != "" {
		content, err := loadPromptFromFile(prompts.UserFile, "user")
		if err != nil {
			return err
		}
		if !strings.Contains(content, "%s") {
			return fmt.Errorf("user prompt file '%s' must contain a %%s placeholder for the request payload", prompts.UserFile)
		}
		prompts.User = content
	}

	return nil
}

// loadPromptFromFile loads a prompt from a file with error handling and logging
func loadPromptFromFile(filePath, promptType string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", promptType, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s prompt file not found: %s", promptType, absPath)
		}
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", promptType, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", promptType, absPath)
	}

	log.Printf("[CONFIG] Loaded anonymizer %s prompt from file: %s (%d characters)", promptType, absPath, len(trimmed))
	return trimmed, nil
}
