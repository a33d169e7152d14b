package cli

import (
	"fmt"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"
	"cohortlens/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP server exposing the cohort statistics, realtime
recommendation and application review operations.

Available endpoints:
- POST /api/v1/stats: Cohort statistics for a position
- POST /api/v1/recommendations: Realtime writing recommendations
- POST /api/v1/review: Review a complete application
- GET /health: Health check endpoint
- GET /stats: Server, cache and rate limiting statistics
- GET /metrics: Prometheus metrics

TLS Configuration:
- Use --tls-mode to set TLS mode: disabled, server, mutual
- Use --cert-file and --key-file for TLS certificates
- Use --ca-file for mutual TLS client certificate verification`,
	RunE: runServe,
}

// serveFlagKeys maps each override flag to its configuration key
var serveFlagKeys = map[string]string{
	"port":      "server.port",
	"host":      "server.host",
	"tls-mode":  "server.tls.mode",
	"cert-file": "server.tls.certFile",
	"key-file":  "server.tls.keyFile",
	"ca-file":   "server.tls.caFile",
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("tls-mode", "", "TLS mode: disabled, server, mutual (overrides config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")
	serveCmd.Flags().String("ca-file", "", "CA certificate file for client cert verification (PEM, overrides config)")
}

// applyServeOverrides copies the flags the user set over the server config
func applyServeOverrides(flags *pflag.FlagSet, cfg *config.ServerConfig) error {
	v := viper.New()
	for flagName, key := range serveFlagKeys {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flagName, err)
		}
	}

	overrides := map[string]*string{
		"server.port":         &cfg.Port,
		"server.host":         &cfg.Host,
		"server.tls.mode":     &cfg.TLS.Mode,
		"server.tls.certFile": &cfg.TLS.CertFile,
		"server.tls.keyFile":  &cfg.TLS.KeyFile,
		"server.tls.caFile":   &cfg.TLS.CAFile,
	}
	for key, target := range overrides {
		if v.IsSet(key) {
			*target = v.GetString(key)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}

	if err := applyServeOverrides(cmd.Flags(), &cfg.Server); err != nil {
		return err
	}
	if err := cfg.ValidateTLSConfig(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	return withApp(cmd, func(a *app, logger *errors.Logger) error {
		ctx := cmd.Context()

		// A failed first load is not fatal; queries degrade until the corpus is reachable
		if _, err := a.snapshot.Load(ctx); err != nil {
			logger.Warn("Corpus not loaded at startup", "error", err.Error())
		}

		status := a.componentStatus()
		srv := server.New(cfg.Server, Version, server.Deps{
			Stats:           a.stats,
			Recommendations: a.recommend,
			Observability:   a.obs,
			Status:          status,
			Health:          a.health,
		}, logger)

		if cfg.Vault.Enabled && cfg.Vault.Secrets.APIKeys != "" {
			client, err := config.NewVaultClient(cfg.Vault, logger)
			if err != nil {
				return errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize vault client", err)
			}
			watcher := server.NewAPIKeyWatcher(client, cfg.Vault.Secrets.APIKeys, server.DefaultKeyPollInterval, srv.SetAPIKeys, logger)
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			status["api_keys"] = watcher.Status
		}

		if err := a.obs.StartPrometheusServer(); err != nil {
			return errors.NewNetworkError(errors.ErrCodeServerFailed, "failed to start Prometheus metrics server", err)
		}

		return srv.Run(ctx)
	})
}
