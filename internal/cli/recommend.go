package cli

import (
	"context"
	"fmt"

	"cohortlens/internal/common"
	"cohortlens/internal/errors"
	"cohortlens/internal/recommend"
	"cohortlens/internal/types"

	"github.com/spf13/cobra"
)

const cliRequesterID = "cli"

var recommendCmd = &cobra.Command{
	Use:   "recommend [draft-file]",
	Short: "Suggest improvements for a draft answer",
	Long: `Compare a draft answer with the cohort of the given position and list
up to six suggestions sorted by relevance: activity patterns the cohort
shares, keywords the draft is missing, and hints for the question being
answered. Drafts shorter than ten characters get no suggestions.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if recommendPosition == "" {
			return errors.NewValidationError(errors.ErrCodeInvalidInput, "--position is required", nil)
		}
		return prepareOutput(cmd, &recommendConfig)
	},
	RunE: runRecommend,
}

var (
	recommendConfig   common.CommandConfig
	recommendPosition string
	recommendQuestion string
)

func init() {
	addOutputFlags(recommendCmd, &recommendConfig)
	recommendCmd.Flags().StringVarP(&recommendPosition, "position", "p", "", "Target position (required)")
	recommendCmd.Flags().StringVarP(&recommendQuestion, "question", "q", "", "Question the draft answers")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app, logger *errors.Logger) error {
		createInput := func(contents []string) (types.RecommendationRequest, error) {
			if len(contents) != 1 {
				return types.RecommendationRequest{}, fmt.Errorf("expected 1 file path, got %d", len(contents))
			}
			request := types.RecommendationRequest{
				InputText:    contents[0],
				Position:     recommendPosition,
				QuestionText: recommendQuestion,
			}
			return request, common.ValidateInput(request)
		}
		logDetails := func(input types.RecommendationRequest, cfg common.CommandConfig) {
			logger.Info("Generating recommendations",
				"position", input.Position,
				"draft_chars", len(input.InputText),
				"has_question", input.QuestionText != "",
				"output_format", cfg.OutputFormat)
		}
		operation := func(ctx context.Context, input types.RecommendationRequest) (*types.RecommendationResult, error) {
			return a.recommend.GenerateRealtimeRecommendations(ctx, recommend.Request{
				InputText:    input.InputText,
				QueryTitle:   input.Position,
				QuestionText: input.QuestionText,
				RequesterID:  cliRequesterID,
			}), nil
		}
		return common.RunCommand(cmd.Context(), logger, recommendConfig, args, createInput, operation, logDetails)
	})
}
