package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"cohortlens/internal/config"
)

// DefaultSystemPrompt is the anonymizer's system instruction
const DefaultSystemPrompt = `You rewrite short activity descriptions taken from past job applications so they can be shown to other applicants as examples.

Rules:
- Remove every identifying detail: names of people, companies, schools, products, places, dates and exact figures that could single someone out.
- Keep the kind of activity, the role the person played and the type of result.
- Write each example as one concise sentence in the language of the input.
- Never invent achievements that are not implied by the input.
- Return exactly the activity types you were given, in the same order.`

// DefaultUserPrompt is the anonymizer's user prompt; %s receives the request JSON
const DefaultUserPrompt = `Paraphrase the raw examples below for applicants to the position given as queryTitle.

For each entry of perActivityRawExamples, return the same activityType with up to five anonymized examples.
Respond with JSON only, in the form {"anonymized":[{"activityType":"...","examples":["..."]}]}.

Request:
%s`

// PromptSet holds the resolved prompts for one anonymizer
type PromptSet struct {
	System string
	User   string
}

// ResolvePrompts picks configured prompts over the defaults. A user prompt
// without a %s placeholder falls back to the default.
func ResolvePrompts(cfg config.PromptConfig) PromptSet {
	return PromptSet{
		System: resolvePrompt(cfg.System, DefaultSystemPrompt),
		User:   resolvePrompt(placeholderOnly(cfg.User), DefaultUserPrompt),
	}
}

// BuildUserPrompt renders the user prompt around the JSON request
func (p PromptSet) BuildUserPrompt(req AnonymizeRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode anonymize request: %w", err)
	}
	return fmt.Sprintf(p.User, payload), nil
}

func placeholderOnly(prompt string) string {
	if strings.Contains(prompt, "%s") {
		return prompt
	}
	return ""
}

// resolvePrompt returns the configured prompt when set, the default otherwise
func resolvePrompt(fromConfig, fromDefault string) string {
	if strings.TrimSpace(fromConfig) != "" {
		return fromConfig
	}
	return fromDefault
}
