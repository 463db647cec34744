package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id            TEXT PRIMARY KEY,
	principal     TEXT NOT NULL,
	message       TEXT NOT NULL,
	run_at        TIMESTAMP NOT NULL,
	cron_spec     TEXT,
	status        TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_due
	ON scheduled_jobs (status, run_at);
`

// SQLiteStore persists jobs in a local SQLite database so scheduled
// tasks survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent tool calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create stores a job.
func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, principal, message, run_at, cron_spec, status, created_at, completed_at, error_message)
		VALUES (?,?,?,?,?,?,?,?,?)
	`,
		job.ID,
		job.Principal,
		job.Message,
		job.RunAt.UTC(),
		nullString(job.CronSpec),
		string(job.Status),
		job.CreatedAt.UTC(),
		nullTime(job.CompletedAt),
		nullString(job.Error),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// Update replaces a job record.
func (s *SQLiteStore) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET principal = ?, message = ?, run_at = ?, cron_spec = ?, status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`,
		job.Principal,
		job.Message,
		job.RunAt.UTC(),
		nullString(job.CronSpec),
		string(job.Status),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// Get returns a job by id, or nil when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, principal, message, run_at, cron_spec, status, created_at, completed_at, error_message
		FROM scheduled_jobs WHERE id = ?
	`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// List returns jobs ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, principal, message, run_at, cron_spec, status, created_at, completed_at, error_message
		FROM scheduled_jobs ORDER BY created_at LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Due returns pending jobs scheduled at or before now, earliest first.
func (s *SQLiteStore) Due(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, principal, message, run_at, cron_spec, status, created_at, completed_at, error_message
		FROM scheduled_jobs WHERE status = ? AND run_at <= ? ORDER BY run_at
	`, string(StatusPending), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Prune removes finished jobs older than olderThan.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scheduled_jobs WHERE status != ? AND created_at < ?
	`, string(StatusPending), time.Now().Add(-olderThan).UTC())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Cancel marks a pending job cancelled.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(StatusCancelled), time.Now().UTC(), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status string
	var cronSpec sql.NullString
	var completedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(&job.ID, &job.Principal, &job.Message, &job.RunAt,
		&cronSpec, &status, &job.CreatedAt, &completedAt, &errMsg); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	if cronSpec.Valid {
		job.CronSpec = cronSpec.String
	}
	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
