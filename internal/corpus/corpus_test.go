package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	apperrors "cohortlens/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCorpus = `[
  {
    "id": "r1",
    "jobTitle": "  Backend Developer ",
    "specAttributes": {"gpa": "3.8/4.5", "toeic": 850, "certificates": ["SQLD", "AWS SAA"], "extra": {"nested": true}},
    "activities": {"projects": ["Led a 5-person web-platform project.", ""], "club": "Ran the robotics club"}
  },
  {
    "id": 2,
    "jobTitle": null,
    "specAttributes": "not an object",
    "activities": ["not", "a", "map"]
  },
  42
]`

func TestDecodeRecordsLenient(t *testing.T) {
	records, err := DecodeRecords([]byte(sampleCorpus))
	require.NoError(t, err)
	require.Len(t, records, 2, "non-object elements are skipped")

	first := records[0]
	assert.Equal(t, "r1", first.ID)
	assert.Equal(t, "Backend Developer", first.JobTitle)
	assert.Equal(t, "3.8/4.5", first.SpecAttributes["gpa"])
	assert.Equal(t, "850", first.SpecAttributes["toeic"])
	assert.JSONEq(t, `["SQLD", "AWS SAA"]`, first.SpecAttributes["certificates"])
	assert.NotContains(t, first.SpecAttributes, "extra")
	assert.Equal(t, []string{"Led a 5-person web-platform project.", ""}, first.Activities["projects"])
	assert.Equal(t, []string{"Ran the robotics club"}, first.Activities["club"])

	second := records[1]
	assert.Equal(t, "2", second.ID)
	assert.Empty(t, second.JobTitle)
	assert.Empty(t, second.SpecAttributes)
	assert.Empty(t, second.Activities)
}

func TestDecodeRecordsRejectsNonArray(t *testing.T) {
	_, err := DecodeRecords([]byte(`{"id": "x"}`))
	assert.Error(t, err)
}

func TestRecordHelpers(t *testing.T) {
	r := Record{
		SpecAttributes: map[string]string{"grade": " 3.9 ", "gpa": ""},
		Activities: map[string][]string{
			"zeta":  {"third"},
			"alpha": {"first", "  ", "second"},
		},
	}

	assert.Equal(t, "3.9", r.Attribute("gpa", "grade"))
	assert.Empty(t, r.Attribute("missing"))
	assert.Equal(t, []string{"first", "second", "third"}, r.Descriptions())
	assert.Equal(t, 3, r.ActivityCount())
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCorpus), 0600))

	t.Run("loads records", func(t *testing.T) {
		records, err := NewFileSource(path, 0, 0).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("applies limit", func(t *testing.T) {
		records, err := NewFileSource(path, 0, 1).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("rejects oversized file", func(t *testing.T) {
		_, err := NewFileSource(path, 16, 0).Load(context.Background())
		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperrors.ErrCodeCorpusUnavailable, appErr.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(dir, "nope.json"), 0, 0).Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{broken`), 0600))
		_, err := NewFileSource(bad, 0, 0).Load(context.Background())
		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperrors.ErrCodeCorpusMalformed, appErr.Code)
	})
}

type countingSource struct {
	records []Record
	err     error
	calls   int
}

func (s *countingSource) Load(ctx context.Context) ([]Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func TestSnapshot(t *testing.T) {
	source := &countingSource{records: []Record{{ID: "a"}, {ID: "b"}}}
	snapshot := NewSnapshot(source, apperrors.Discard())

	records, err := snapshot.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = snapshot.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second load is served from the snapshot")
	assert.Equal(t, 2, snapshot.Size())
	assert.False(t, snapshot.LoadedAt().IsZero())

	source.err = errors.New("store offline")
	_, err = snapshot.Reload(context.Background())
	assert.Error(t, err)

	records, err = snapshot.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2, "failed reload keeps the previous snapshot")
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"1","jobTitle":"a"}]`), 0600))

	snapshot := NewSnapshot(NewFileSource(path, 0, 0), apperrors.Discard())
	_, err := snapshot.Load(context.Background())
	require.NoError(t, err)

	watcher := NewWatcher(path, snapshot, 50*time.Millisecond, apperrors.Discard())
	require.NoError(t, watcher.Start())
	defer func() { _ = watcher.Stop() }()
	assert.True(t, watcher.IsRunning())
	assert.Error(t, watcher.Start(), "double start is rejected")

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"1"},{"id":"2"},{"id":"3"}]`), 0600))

	assert.Eventually(t, func() bool { return snapshot.Size() == 3 }, 5*time.Second, 20*time.Millisecond)
}

func TestPostgresSourceLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	source, err := NewPostgresSource(db, "cohort_records", 1000)
	require.NoError(t, err)

	attrs, _ := json.Marshal(map[string]any{"gpa": "4.1", "toeic": 900})
	rows := sqlmock.NewRows([]string{"id", "job_title", "spec_attributes", "activities"}).
		AddRow("1", "Data Analyst", string(attrs), `{"projects": ["Built a churn dashboard project"]}`).
		AddRow("2", nil, `not json`, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id::text, job_title, spec_attributes::text, activities::text FROM cohort_records ORDER BY id LIMIT $1`)).
		WithArgs(1000).
		WillReturnRows(rows)

	records, err := source.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Data Analyst", records[0].JobTitle)
	assert.Equal(t, "900", records[0].SpecAttributes["toeic"])
	assert.Equal(t, []string{"Built a churn dashboard project"}, records[0].Activities["projects"])

	assert.Empty(t, records[1].JobTitle)
	assert.Empty(t, records[1].SpecAttributes, "unparseable JSON columns are treated as absent")
	assert.Empty(t, records[1].Activities)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSourceQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	source, err := NewPostgresSource(db, "public.cohort_records", 10)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT .* FROM public\.cohort_records`).WillReturnError(errors.New("connection refused"))

	_, err = source.Load(context.Background())
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrorTypeCorpus, appErr.Type)
	assert.Equal(t, apperrors.ErrCodeCorpusUnavailable, appErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPostgresSourceRejectsBadTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = NewPostgresSource(db, "records; DROP TABLE users", 10)
	assert.Error(t, err)
}
