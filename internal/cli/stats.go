package cli

import (
	"context"
	"strings"

	"cohortlens/internal/common"
	"cohortlens/internal/errors"
	"cohortlens/internal/types"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats [position]",
	Short: "Show cohort statistics for a position",
	Long: `Compute the statistics of the applicants whose job title matches the
given position: average grade and test score, the most common schools,
majors, certificates and skills, and the activity patterns found in their
activity descriptions.

Examples are paraphrased by the configured anonymizer. When anonymization
fails the patterns are still shown, without examples. Use
--skip-anonymization to show the original excerpts instead.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return prepareOutput(cmd, &statsConfig)
	},
	RunE: runStats,
}

var (
	statsConfig            common.CommandConfig
	statsSkipAnonymization bool
)

func init() {
	addOutputFlags(statsCmd, &statsConfig)
	statsCmd.Flags().BoolVar(&statsSkipAnonymization, "skip-anonymization", false, "Show original excerpts instead of anonymized examples")
}

func runStats(cmd *cobra.Command, args []string) error {
	request := types.StatsRequest{
		Position:          strings.TrimSpace(args[0]),
		SkipAnonymization: statsSkipAnonymization,
	}
	if err := common.ValidateInput(request); err != nil {
		return err
	}

	return withApp(cmd, func(a *app, logger *errors.Logger) error {
		createInput := func([]string) (types.StatsRequest, error) {
			return request, nil
		}
		logDetails := func(input types.StatsRequest, cfg common.CommandConfig) {
			logger.Info("Computing cohort statistics",
				"position", input.Position,
				"skip_anonymization", input.SkipAnonymization,
				"output_format", cfg.OutputFormat)
		}
		operation := func(ctx context.Context, input types.StatsRequest) (*types.ComprehensiveStats, error) {
			return a.stats.GetComprehensiveStats(ctx, input.Position, input.SkipAnonymization), nil
		}
		return common.RunCommand(cmd.Context(), logger, statsConfig, nil, createInput, operation, logDetails)
	})
}
