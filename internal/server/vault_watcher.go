package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
)

// DefaultKeyPollInterval is how often Vault is checked for rotated API keys
const DefaultKeyPollInterval = time.Minute

// SecretReader reads KV v2 secrets
type SecretReader interface {
	GetSecretV2(path string) (*config.VaultSecret, error)
}

// APIKeyWatcher polls a Vault secret holding the comma-separated API keys
// and applies a new version to the server without a restart
type APIKeyWatcher struct {
	mu sync.RWMutex

	client       SecretReader
	secretPath   string
	pollInterval time.Duration
	apply        func(keys []string)
	logger       *errors.Logger

	running     bool
	lastVersion int64
	lastError   string
	lastChecked time.Time
}

// NewAPIKeyWatcher creates a watcher; apply receives every new key set
func NewAPIKeyWatcher(client SecretReader, secretPath string, pollInterval time.Duration, apply func(keys []string), logger *errors.Logger) *APIKeyWatcher {
	if pollInterval <= 0 {
		pollInterval = DefaultKeyPollInterval
	}
	return &APIKeyWatcher{
		client:       client,
		secretPath:   secretPath,
		pollInterval: pollInterval,
		apply:        apply,
		logger:       logger,
	}
}

// Start polls in the background until ctx is done
func (w *APIKeyWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("api key watcher is already running")
	}
	w.running = true
	go w.pollLoop(ctx)
	w.logger.Info("API key watcher started", "secret_path", w.secretPath, "poll_interval", w.pollInterval.String())
	return nil
}

func (w *APIKeyWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := w.check(); err != nil {
				w.logger.LogError(err, "Failed to check Vault for rotated API keys")
			}
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			w.logger.Info("API key watcher stopped")
			return
		}
	}
}

// check applies the secret when its version is newer than the last one seen
func (w *APIKeyWatcher) check() (bool, error) {
	secret, err := w.client.GetSecretV2(w.secretPath)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastChecked = time.Now()
	if err != nil {
		w.lastError = err.Error()
		return false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Version <= w.lastVersion {
		return false, nil
	}

	raw, err := secret.String("keys")
	if err != nil {
		w.lastError = err.Error()
		return false, fmt.Errorf("secret %s: %w", w.secretPath, err)
	}
	var keys []string
	for part := range strings.SplitSeq(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}

	w.lastVersion = secret.Version
	w.lastError = ""
	w.apply(keys)
	w.logger.Info("API keys rotated from Vault", "version", secret.Version, "keys", len(keys))
	return true, nil
}

// Status returns the watcher state for the /stats endpoint
func (w *APIKeyWatcher) Status() any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return map[string]any{
		"running":       w.running,
		"poll_interval": w.pollInterval.String(),
		"secret_path":   w.secretPath,
		"last_version":  w.lastVersion,
		"last_checked":  w.lastChecked,
		"last_error":    w.lastError,
	}
}
