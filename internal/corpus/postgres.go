package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cohortlens/internal/errors"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostgresSource reads records from a table shaped
// (id, job_title, spec_attributes jsonb, activities jsonb)
type PostgresSource struct {
	db    *sql.DB
	query string
	limit int
}

// OpenPostgres opens a connection pool through the pgx database/sql driver
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// NewPostgresSource creates a source over db reading from table
func NewPostgresSource(db *sql.DB, table string, limit int) (*PostgresSource, error) {
	if !identifierPattern.MatchString(table) {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "invalid corpus table name", nil).
			WithContext("table", table)
	}
	if limit <= 0 {
		limit = 1000
	}
	return &PostgresSource{
		db: db,
		query: fmt.Sprintf(
			`SELECT id::text, job_title, spec_attributes::text, activities::text FROM %s ORDER BY id LIMIT $1`, table),
		limit: limit,
	}, nil
}

// Ping tests the database connection
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// Load queries up to limit records. Unparseable JSON columns are treated as absent.
func (s *PostgresSource) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.limit)
	if err != nil {
		return nil, errors.NewCorpusError(errors.ErrCodeCorpusUnavailable, "failed to query corpus records", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			id         string
			jobTitle   sql.NullString
			attributes sql.NullString
			activities sql.NullString
		)
		if err := rows.Scan(&id, &jobTitle, &attributes, &activities); err != nil {
			return nil, errors.NewCorpusError(errors.ErrCodeCorpusMalformed, "failed to scan corpus record", err)
		}
		records = append(records, Record{
			ID:             id,
			JobTitle:       strings.TrimSpace(jobTitle.String),
			SpecAttributes: DecodeAttributes([]byte(attributes.String)),
			Activities:     DecodeActivities([]byte(activities.String)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewCorpusError(errors.ErrCodeCorpusUnavailable, "failed to iterate corpus records", err)
	}
	return records, nil
}
