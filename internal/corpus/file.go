package corpus

import (
	"context"
	"encoding/json"
	"fmt"

	"cohortlens/internal/errors"
	"cohortlens/internal/utils"
)

// FileSource loads records from a JSON array file
type FileSource struct {
	path    string
	maxSize int64
	limit   int
}

// NewFileSource creates a file source. maxSize bounds the file in bytes and
// limit caps the number of records returned; zero disables either bound.
func NewFileSource(path string, maxSize int64, limit int) *FileSource {
	return &FileSource{path: path, maxSize: maxSize, limit: limit}
}

// Path returns the file the source reads
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and decodes the corpus file
func (s *FileSource) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := utils.ReadFileLimited(s.path, s.maxSize)
	if err != nil {
		return nil, errors.NewCorpusError(errors.ErrCodeCorpusUnavailable, "failed to read corpus file", err).
			WithContext("path", s.path)
	}

	records, err := DecodeRecords(data)
	if err != nil {
		return nil, errors.NewCorpusError(errors.ErrCodeCorpusMalformed, "corpus file is not a JSON array of records", err).
			WithContext("path", s.path)
	}

	if s.limit > 0 && len(records) > s.limit {
		records = records[:s.limit]
	}
	return records, nil
}

// DecodeRecords decodes a JSON array of records. Elements that are not
// objects are skipped.
func DecodeRecords(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// StaticSource serves a fixed slice of records
type StaticSource []Record

// Load returns the records
func (s StaticSource) Load(ctx context.Context) ([]Record, error) {
	return s, ctx.Err()
}
