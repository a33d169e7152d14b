package cli

import (
	"context"
	"fmt"

	"cohortlens/internal/common"
	"cohortlens/internal/config"
	"cohortlens/internal/errors"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "cohortlens",
	Short: "Cohort activity analytics for application writing",
	Long: `Cohortlens aggregates the applicant records of a target position into
cohort statistics: averages, attribute distributions and the activity
patterns mined from free-text descriptions. It also serves realtime writing
recommendations and reviews complete applications against that cohort.`,
	SilenceUsage: true,
}

// Execute runs the CLI with the loaded configuration and logger
func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg, nil
	}
	return nil, errors.NewInternalError(errors.ErrCodeInvalidConfig, "config not found in context", nil)
}

func getLoggerFromContext(ctx context.Context) (*errors.Logger, error) {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger, nil
	}
	return nil, errors.NewInternalError(errors.ErrCodeInvalidConfig, "logger not found in context", nil)
}

// addOutputFlags registers --output and --format on a query command
func addOutputFlags(cmd *cobra.Command, cmdConfig *common.CommandConfig) {
	cmd.Flags().StringVarP(&cmdConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().StringVar(&cmdConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return []string{}, cobra.ShellCompDirectiveError
		}
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

// prepareOutput applies the default format and the input size limit
func prepareOutput(cmd *cobra.Command, cmdConfig *common.CommandConfig) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if cmdConfig.OutputFormat == "" {
		cmdConfig.OutputFormat = cfg.App.DefaultFormat
	}
	cmdConfig.MaxFileSize = cfg.App.MaxFileSize
	if err := common.ValidateOutputFormat(cmdConfig.OutputFormat, cfg.App.SupportedFormats); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidFormat, err.Error(), nil)
	}
	return nil
}

// withApp builds the shared services for one command run
func withApp(cmd *cobra.Command, fn func(a *app, logger *errors.Logger) error) error {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	logger = logger.With("command", cmd.Name())

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))
	return fn(a, logger)
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
