package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"prcast/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "prcast.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle so the feed store can share the same
// database file and transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert persists a brand new job. The job's timestamps and version are
// assigned here. A duplicate id yields ErrDuplicateJob.
func (s *Store) Insert(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Version = 1
	if job.Stage == "" {
		job.Stage = StageCollecting
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, repo, pr_number, event_kind, delivery_id, attempt_seq, supersedes,
            stage, attempt_count, next_retry_at, lease_owner, lease_expires,
            error_reason, context_json, script_json, audio_json, episode_json,
            created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Repo,
		job.PRNumber,
		job.EventKind,
		job.DeliveryID,
		job.AttemptSeq,
		nullableString(job.Supersedes),
		job.Stage,
		job.AttemptCount,
		nullableTime(job.NextRetryAt),
		nullableString(job.LeaseOwner),
		nullableTime(job.LeaseExpires),
		nullableString(job.ErrorReason),
		nullableString(job.ContextJSON),
		nullableString(job.ScriptJSON),
		nullableString(job.AudioJSON),
		nullableString(job.EpisodeJSON),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		job.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindLatestAttempt returns the newest attempt record for a delivery, or nil.
func (s *Store) FindLatestAttempt(ctx context.Context, repo string, prNumber int, eventKind, deliveryID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE repo = ? AND pr_number = ? AND event_kind = ? AND delivery_id = ?
         ORDER BY attempt_seq DESC LIMIT 1`,
		repo, prNumber, eventKind, deliveryID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest attempt: %w", err)
	}
	return job, nil
}

// Persist writes job state using optimistic concurrency. The write only lands
// when the stored version still matches the version the caller read; on
// success the in-memory job reflects the incremented version.
func (s *Store) Persist(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	expected := job.Version
	now := time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET stage = ?, attempt_count = ?, next_retry_at = ?,
             lease_owner = ?, lease_expires = ?, error_reason = ?,
             context_json = ?, script_json = ?, audio_json = ?, episode_json = ?,
             updated_at = ?, version = version + 1
         WHERE id = ? AND version = ?`,
		job.Stage,
		job.AttemptCount,
		nullableTime(job.NextRetryAt),
		nullableString(job.LeaseOwner),
		nullableTime(job.LeaseExpires),
		nullableString(job.ErrorReason),
		nullableString(job.ContextJSON),
		nullableString(job.ScriptJSON),
		nullableString(job.AudioJSON),
		nullableString(job.EpisodeJSON),
		now.Format(time.RFC3339Nano),
		job.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("persist job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, getErr := s.GetByID(ctx, job.ID)
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
		}
		return fmt.Errorf("%w: %s observed version %d, stored %d", ErrVersionConflict, job.ID, expected, existing.Version)
	}
	job.Version = expected + 1
	job.UpdatedAt = now
	return nil
}

// ListByStage returns jobs at any of the given stages ordered by creation time.
// Without arguments it returns every job.
func (s *Store) ListByStage(ctx context.Context, stages ...Stage) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(stages))
	if len(stages) > 0 {
		query += ` WHERE stage IN (` + makePlaceholders(len(stages)) + `)`
		for _, stage := range stages {
			args = append(args, stage)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ListRetryable returns jobs whose retry delay has elapsed at the given instant.
func (s *Store) ListRetryable(ctx context.Context, now time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE stage IN (`+workStagePlaceholders+`)
           AND next_retry_at IS NOT NULL AND next_retry_at <= ?
         ORDER BY created_at, id`,
		workStageArgs(now)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns a count of jobs grouped by stage.
func (s *Store) Stats(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM jobs GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Stage]int)
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		stats[stage] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT
            COUNT(1),
            SUM(CASE WHEN stage = 'done' THEN 1 ELSE 0 END),
            SUM(CASE WHEN stage = 'failed' THEN 1 ELSE 0 END),
            SUM(CASE WHEN lease_expires IS NOT NULL AND lease_expires > ?1 THEN 1 ELSE 0 END),
            SUM(CASE WHEN next_retry_at IS NOT NULL AND next_retry_at > ?1 THEN 1 ELSE 0 END)
         FROM jobs`,
		now,
	)
	var health HealthSummary
	var done, failed, inflight, retrying sql.NullInt64
	if err := row.Scan(&health.Total, &done, &failed, &inflight, &retrying); err != nil {
		return HealthSummary{}, fmt.Errorf("job health: %w", err)
	}
	health.Done = int(done.Int64)
	health.Failed = int(failed.Int64)
	health.InFlight = int(inflight.Int64)
	health.Retrying = int(retrying.Int64)
	health.Waiting = health.Total - health.Done - health.Failed - health.InFlight - health.Retrying
	if health.Waiting < 0 {
		health.Waiting = 0
	}
	return health, nil
}

// ClearDone removes completed jobs. Feed entries are untouched.
func (s *Store) ClearDone(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE stage = ?`, StageDone)
	if err != nil {
		return 0, fmt.Errorf("clear done: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, repo, pr_number, event_kind, delivery_id, attempt_seq, supersedes, stage, attempt_count, next_retry_at, lease_owner, lease_expires, error_reason, context_json, script_json, audio_json, episode_json, created_at, updated_at, version"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		repo         string
		prNumber     int
		eventKind    string
		deliveryID   string
		attemptSeq   int
		supersedes   sql.NullString
		stageStr     string
		attemptCount int
		nextRetryRaw sql.NullString
		leaseOwner   sql.NullString
		leaseRaw     sql.NullString
		errorReason  sql.NullString
		contextJSON  sql.NullString
		scriptJSON   sql.NullString
		audioJSON    sql.NullString
		episodeJSON  sql.NullString
		createdRaw   string
		updatedRaw   string
		version      int64
	)

	if err := scanner.Scan(
		&id,
		&repo,
		&prNumber,
		&eventKind,
		&deliveryID,
		&attemptSeq,
		&supersedes,
		&stageStr,
		&attemptCount,
		&nextRetryRaw,
		&leaseOwner,
		&leaseRaw,
		&errorReason,
		&contextJSON,
		&scriptJSON,
		&audioJSON,
		&episodeJSON,
		&createdRaw,
		&updatedRaw,
		&version,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Repo:         repo,
		PRNumber:     prNumber,
		EventKind:    eventKind,
		DeliveryID:   deliveryID,
		AttemptSeq:   attemptSeq,
		Supersedes:   supersedes.String,
		Stage:        Stage(stageStr),
		AttemptCount: attemptCount,
		LeaseOwner:   leaseOwner.String,
		ErrorReason:  errorReason.String,
		ContextJSON:  contextJSON.String,
		ScriptJSON:   scriptJSON.String,
		AudioJSON:    audioJSON.String,
		EpisodeJSON:  episodeJSON.String,
		Version:      version,
	}

	if retryAt, ok := parseNullableTime(nextRetryRaw); ok {
		job.NextRetryAt = retryAt
	}
	if expires, ok := parseNullableTime(leaseRaw); ok {
		job.LeaseExpires = expires
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func parseNullableTime(raw sql.NullString) (*time.Time, bool) {
	if !raw.Valid || raw.String == "" {
		return nil, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

const workStagePlaceholders = "?, ?, ?, ?"

func workStageArgs(now time.Time) []any {
	args := make([]any, 0, 5)
	for _, stage := range WorkStages() {
		args = append(args, stage)
	}
	return append(args, now.UTC().Format(time.RFC3339Nano))
}
