package cli

import (
	"context"
	"fmt"

	"cohortlens/internal/common"
	"cohortlens/internal/errors"
	"cohortlens/internal/types"

	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review [answers-file]",
	Short: "Review a complete application against the cohort",
	Long: `Score a complete set of answers for the given position and list its
strengths and the improvements the cohort suggests.

The answers file is either a JSON array of {"question", "answer"} objects
or plain text, which is reviewed as a single answer.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if reviewPosition == "" {
			return errors.NewValidationError(errors.ErrCodeInvalidInput, "--position is required", nil)
		}
		return prepareOutput(cmd, &reviewConfig)
	},
	RunE: runReview,
}

var (
	reviewConfig   common.CommandConfig
	reviewPosition string
)

func init() {
	addOutputFlags(reviewCmd, &reviewConfig)
	reviewCmd.Flags().StringVarP(&reviewPosition, "position", "p", "", "Target position (required)")
}

func runReview(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app, logger *errors.Logger) error {
		createInput := func(contents []string) (types.ReviewRequest, error) {
			if len(contents) != 1 {
				return types.ReviewRequest{}, fmt.Errorf("expected 1 file path, got %d", len(contents))
			}
			answers, err := common.ParseAnswers(contents[0])
			if err != nil {
				return types.ReviewRequest{}, err
			}
			request := types.ReviewRequest{Position: reviewPosition, Answers: answers}
			return request, common.ValidateInput(request)
		}
		logDetails := func(input types.ReviewRequest, cfg common.CommandConfig) {
			logger.Info("Reviewing application",
				"position", input.Position,
				"answers", len(input.Answers),
				"output_format", cfg.OutputFormat)
		}
		operation := func(ctx context.Context, input types.ReviewRequest) (*types.ReviewResult, error) {
			return a.recommend.Review(ctx, input.Answers, input.Position)
		}
		return common.RunCommand(cmd.Context(), logger, reviewConfig, args, createInput, operation, logDetails)
	})
}
