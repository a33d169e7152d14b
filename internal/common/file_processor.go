package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cohortlens/internal/errors"
	"cohortlens/internal/types"
	"cohortlens/internal/utils"
)

// FileProcessor reads command inputs and writes command outputs
type FileProcessor struct {
	maxSize int64
	logger  *errors.Logger
}

// NewFileProcessor creates a file processor refusing inputs over maxSize bytes
func NewFileProcessor(maxSize int64, logger *errors.Logger) *FileProcessor {
	return &FileProcessor{maxSize: maxSize, logger: logger}
}

// ReadFile reads a text input, mapping failures to IO errors
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return "", errors.NewIOError(errors.ErrCodeFileNotFound,
			fmt.Sprintf("File not found: %s", filename), err)
	}
	data, err := utils.ReadFileLimited(filename, fp.maxSize)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	return string(data), nil
}

// WriteFile writes content, creating the parent directory when needed
func (fp *FileProcessor) WriteFile(filename, content string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError(errors.ErrCodeFileNotWritable,
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}
	if err := os.WriteFile(filename, []byte(content), 0600); err != nil {
		return errors.NewIOError(errors.ErrCodeFileNotWritable,
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}
	return nil
}

// ValidateAndReadFiles reads every named input in order
func (fp *FileProcessor) ValidateAndReadFiles(filenames ...string) ([]string, error) {
	if len(filenames) == 0 {
		return nil, nil
	}
	contents := make([]string, len(filenames))
	for i, filename := range filenames {
		if err := utils.ValidateInputFile(filename); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("Invalid file %s", filename), err)
		}
		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		contents[i] = content
	}
	return contents, nil
}

// ValidateOutputFile validates an output path; empty means stdout
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil
	}
	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}
	return nil
}

// ParseAnswers reads the answers of an application. A JSON array of
// {question, answer} objects is decoded as is; any other text is one
// answer without a question.
func ParseAnswers(content string) ([]types.ReviewAnswer, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "answers file is empty", nil)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return []types.ReviewAnswer{{Answer: trimmed}}, nil
	}

	var answers []types.ReviewAnswer
	if err := json.Unmarshal([]byte(trimmed), &answers); err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput, "answers file is not a valid JSON array", err)
	}
	return answers, nil
}
