package common

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"

	"cohortlens/internal/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateOutputFormat checks format against the configured formats. An
// empty list allows every format.
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 || slices.Contains(supportedFormats, format) {
		return nil
	}
	return fmt.Errorf("unsupported output format '%s'. Supported formats: %v",
		format, supportedFormats)
}

// GetSupportedFormats returns the list of supported formats
func GetSupportedFormats(supportedFormats []string) []string {
	return supportedFormats
}

// ValidateInput applies the request DTO rules to a command input, so the
// CLI accepts exactly what the HTTP API accepts
func ValidateInput(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) {
		return errors.NewValidationError(errors.ErrCodeInvalidInput, "invalid input", err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		if fe.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			messages = append(messages, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.NewValidationError(errors.ErrCodeInvalidInput, strings.Join(messages, "; "), err)
}
