// Package publish finalizes episodes: it appends the rendered episode to the
// repository feed and the master feed in one transaction, then rewrites both
// RSS documents. Replaying a publication converges on the same state.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prcast/internal/audio"
	"prcast/internal/config"
	"prcast/internal/feed"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
	"prcast/internal/services/github"
	"prcast/internal/services/llm"
)

// EpisodeRecord is the durable summary of a published episode, stored on the
// job once publication succeeds.
type EpisodeRecord struct {
	EpisodeID   string    `json:"episode_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	AudioFile   string    `json:"audio_file"`
	Duration    int64     `json:"duration_seconds"`
	RepoFeedSeq int64     `json:"repo_feed_seq"`
	MasterSeq   int64     `json:"master_seq"`
	PublishedAt time.Time `json:"published_at"`
}

// Finalizer publishes rendered episodes into feeds.
type Finalizer struct {
	feeds  *feed.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewFinalizer builds a finalizer over the shared feed store.
func NewFinalizer(feeds *feed.Store, cfg *config.Config, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		feeds:  feeds,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "publish"),
	}
}

// Publish appends the job's episode to its repository feed and the master
// feed, then rewrites both RSS files. Both appends happen in one transaction:
// an episode is never visible in one feed but not the other. Re-running after
// a partial failure is safe; appends are idempotent per job and the RSS files
// are regenerated from the database.
func (f *Finalizer) Publish(ctx context.Context, job *queue.Job) (*EpisodeRecord, error) {
	entry, err := buildEntry(f.cfg, job)
	if err != nil {
		return nil, err
	}

	repoFeedID := feed.RepoFeedID(job.Repo)

	tx, err := f.feeds.Begin(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publishing", "begin", "open transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	repoEntry := entry
	repoEntry.FeedID = repoFeedID
	repoEntry, err = f.feeds.Append(ctx, tx, repoEntry)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publishing", "append", "repository feed", err)
	}

	masterEntry := entry
	masterEntry.FeedID = feed.MasterFeedID
	masterEntry, err = f.feeds.Append(ctx, tx, masterEntry)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publishing", "append", "master feed", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, services.Wrap(services.ErrTransient, "publishing", "commit", "commit transaction", err)
	}

	if err := f.WriteFeeds(ctx, repoFeedID, feed.MasterFeedID); err != nil {
		return nil, err
	}
	f.writeScriptCopy(job, repoEntry)

	record := &EpisodeRecord{
		EpisodeID:   repoEntry.EpisodeID,
		Title:       repoEntry.Title,
		Summary:     repoEntry.Description,
		AudioFile:   repoEntry.AudioFile,
		Duration:    repoEntry.DurationSeconds,
		RepoFeedSeq: repoEntry.Seq,
		MasterSeq:   masterEntry.Seq,
		PublishedAt: repoEntry.PublishedAt,
	}
	f.logger.Info("episode published",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldRepo, job.Repo),
		logging.String("episode_id", record.EpisodeID),
		logging.Int64("repo_seq", record.RepoFeedSeq),
		logging.Int64("master_seq", record.MasterSeq))
	return record, nil
}

// writeScriptCopy drops the dialogue next to the episode audio as an audit
// trail. Failures are logged, not fatal; the script survives on the job row.
func (f *Finalizer) writeScriptCopy(job *queue.Job, entry feed.Entry) {
	audioPath := filepath.Join(f.cfg.Paths.AudioDir, filepath.FromSlash(entry.AudioFile))
	scriptPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".script.json"
	if err := os.WriteFile(scriptPath, []byte(job.ScriptJSON), 0o644); err != nil {
		f.logger.Warn("script copy not written",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
}

// WriteFeeds re-renders the named feeds from the database.
func (f *Finalizer) WriteFeeds(ctx context.Context, feedIDs ...string) error {
	for _, feedID := range feedIDs {
		entries, err := f.feeds.Entries(ctx, feedID)
		if err != nil {
			return services.Wrap(services.ErrTransient, "publishing", "render", feedID, err)
		}
		channel := feed.ChannelFor(f.cfg, feedID)
		document, err := feed.RenderRSS(channel, entries, f.cfg.Podcast.BaseURL)
		if err != nil {
			return services.Wrap(services.ErrPermanent, "publishing", "render", feedID, err)
		}
		path := feed.FilePath(f.cfg.Paths.FeedsDir, feedID)
		if err := feed.WriteFile(path, document); err != nil {
			return services.Wrap(services.ErrTransient, "publishing", "write", feedID, err)
		}
	}
	return nil
}

// RebuildAll re-renders every feed that has entries. Used by the CLI to
// recover feed files after manual edits or disk loss.
func (f *Finalizer) RebuildAll(ctx context.Context) ([]string, error) {
	feedIDs, err := f.feeds.FeedIDs(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "publishing", "rebuild", "list feeds", err)
	}
	if err := f.WriteFeeds(ctx, feedIDs...); err != nil {
		return nil, err
	}
	return feedIDs, nil
}

func buildEntry(cfg *config.Config, job *queue.Job) (feed.Entry, error) {
	var empty feed.Entry
	if job == nil {
		return empty, services.Wrap(services.ErrValidation, "publishing", "publish", "job is nil", nil)
	}

	var prctx github.PRContext
	if err := json.Unmarshal([]byte(job.ContextJSON), &prctx); err != nil {
		return empty, services.Wrap(services.ErrPermanent, "publishing", "publish", "decode pr context", err)
	}
	var dialogue llm.Dialogue
	if err := json.Unmarshal([]byte(job.ScriptJSON), &dialogue); err != nil {
		return empty, services.Wrap(services.ErrPermanent, "publishing", "publish", "decode dialogue", err)
	}
	var episode audio.Episode
	if err := json.Unmarshal([]byte(job.AudioJSON), &episode); err != nil {
		return empty, services.Wrap(services.ErrPermanent, "publishing", "publish", "decode episode audio", err)
	}
	if episode.Path == "" {
		return empty, services.Wrap(services.ErrPermanent, "publishing", "publish", "episode audio path missing", nil)
	}

	audioFile, err := filepath.Rel(cfg.Paths.AudioDir, episode.Path)
	if err != nil || filepath.IsAbs(audioFile) {
		audioFile = filepath.Join(audio.SanitizeRepo(job.Repo), filepath.Base(episode.Path))
	}

	title := dialogue.Title
	if title == "" {
		title = fmt.Sprintf("%s #%d: %s", job.Repo, job.PRNumber, prctx.PR.Title)
	}

	return feed.Entry{
		JobID:           job.ID,
		EpisodeID:       job.ID,
		Title:           title,
		Description:     dialogue.Summary,
		PRURL:           prctx.PR.HTMLURL,
		AudioFile:       filepath.ToSlash(audioFile),
		DurationSeconds: int64(episode.Duration / time.Second),
		PublishedAt:     time.Now().UTC(),
	}, nil
}
