// Package feed persists published episode entries and renders them as podcast
// RSS documents. Entries live in the same SQLite database as jobs so a
// publication can cover both feeds in one transaction.
package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MasterFeedID is the aggregate feed carrying every repository's episodes.
const MasterFeedID = "master"

// RepoFeedID returns the feed identifier for a single repository.
func RepoFeedID(repo string) string {
	return "repo:" + repo
}

// Entry is one published episode in one feed.
type Entry struct {
	FeedID          string
	Seq             int64
	JobID           string
	EpisodeID       string
	Title           string
	Description     string
	PRURL           string
	AudioFile       string
	DurationSeconds int64
	PublishedAt     time.Time
}

// Store reads and writes feed entries.
type Store struct {
	db *sql.DB
}

// NewStore wraps the shared database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Querier is satisfied by *sql.DB and *sql.Tx so appends can run inside the
// publication transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Begin opens a transaction on the underlying database.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Append inserts the entry at the next sequence number of its feed. Appending
// the same job to the same feed twice is a no-op that returns the existing
// entry, so replayed publications converge instead of duplicating episodes.
func (s *Store) Append(ctx context.Context, q Querier, entry Entry) (Entry, error) {
	if q == nil {
		q = s.db
	}
	if err := validateEntry(entry); err != nil {
		return Entry{}, err
	}

	existing, err := findByJob(ctx, q, entry.FeedID, entry.JobID)
	if err != nil {
		return Entry{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	row := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM feed_entries WHERE feed_id = ?`, entry.FeedID)
	if err := row.Scan(&entry.Seq); err != nil {
		return Entry{}, fmt.Errorf("next feed seq: %w", err)
	}

	_, err = q.ExecContext(
		ctx,
		`INSERT INTO feed_entries (feed_id, seq, job_id, episode_id, title, description, pr_url, audio_file, duration_seconds, published_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.FeedID,
		entry.Seq,
		entry.JobID,
		entry.EpisodeID,
		entry.Title,
		entry.Description,
		entry.PRURL,
		entry.AudioFile,
		entry.DurationSeconds,
		entry.PublishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			// Lost an append race; the other writer's entry wins.
			winner, findErr := findByJob(ctx, q, entry.FeedID, entry.JobID)
			if findErr == nil && winner != nil {
				return *winner, nil
			}
		}
		return Entry{}, fmt.Errorf("append feed entry: %w", err)
	}
	return entry, nil
}

// Entries returns the feed's entries in publication order.
func (s *Store) Entries(ctx context.Context, feedID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT feed_id, seq, job_id, episode_id, title, description, pr_url, audio_file, duration_seconds, published_at
         FROM feed_entries WHERE feed_id = ? ORDER BY seq`,
		feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("list feed entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FeedIDs returns every feed that has at least one entry.
func (s *Store) FeedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT feed_id FROM feed_entries ORDER BY feed_id`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func findByJob(ctx context.Context, q Querier, feedID, jobID string) (*Entry, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT feed_id, seq, job_id, episode_id, title, description, pr_url, audio_file, duration_seconds, published_at
         FROM feed_entries WHERE feed_id = ? AND job_id = ?`,
		feedID, jobID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find feed entry: %w", err)
	}
	return &entry, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var entry Entry
	var publishedRaw string
	if err := scanner.Scan(
		&entry.FeedID,
		&entry.Seq,
		&entry.JobID,
		&entry.EpisodeID,
		&entry.Title,
		&entry.Description,
		&entry.PRURL,
		&entry.AudioFile,
		&entry.DurationSeconds,
		&publishedRaw,
	); err != nil {
		return Entry{}, err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, publishedRaw); err == nil {
		entry.PublishedAt = parsed
	}
	return entry, nil
}

func validateEntry(entry Entry) error {
	switch {
	case strings.TrimSpace(entry.FeedID) == "":
		return errors.New("feed id is required")
	case strings.TrimSpace(entry.JobID) == "":
		return errors.New("job id is required")
	case strings.TrimSpace(entry.EpisodeID) == "":
		return errors.New("episode id is required")
	case strings.TrimSpace(entry.Title) == "":
		return errors.New("entry title is required")
	case entry.PublishedAt.IsZero():
		return errors.New("published time is required")
	}
	return nil
}
