package feed_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"prcast/internal/feed"
	"prcast/internal/testsupport"
)

func entry(feedID, jobID, title string) feed.Entry {
	return feed.Entry{
		FeedID:          feedID,
		JobID:           jobID,
		EpisodeID:       "ep-" + jobID,
		Title:           title,
		Description:     "Episode about " + title,
		PRURL:           "https://github.com/octo/widgets/pull/1",
		AudioFile:       "octo-widgets/ep-" + jobID + ".mp3",
		DurationSeconds: 300,
		PublishedAt:     time.Now().UTC(),
	}
}

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	feeds := feed.NewStore(store.DB())

	ctx := context.Background()
	first, err := feeds.Append(ctx, nil, entry("master", "job-1", "First"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	second, err := feeds.Append(ctx, nil, entry("master", "job-2", "Second"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1 then 2, got %d and %d", first.Seq, second.Seq)
	}

	// Per-feed numbering restarts at 1.
	other, err := feeds.Append(ctx, nil, entry(feed.RepoFeedID("octo/widgets"), "job-1", "First"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if other.Seq != 1 {
		t.Fatalf("expected seq 1 in fresh feed, got %d", other.Seq)
	}
}

func TestAppendIsIdempotentPerJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	feeds := feed.NewStore(store.DB())

	ctx := context.Background()
	first, err := feeds.Append(ctx, nil, entry("master", "job-1", "First"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	replay, err := feeds.Append(ctx, nil, entry("master", "job-1", "First replayed"))
	if err != nil {
		t.Fatalf("replay Append failed: %v", err)
	}
	if replay.Seq != first.Seq || replay.Title != "First" {
		t.Fatalf("replay must return the original entry, got %#v", replay)
	}

	entries, err := feeds.Entries(ctx, "master")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
}

func TestAppendWithinTransaction(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	feeds := feed.NewStore(store.DB())

	ctx := context.Background()
	tx, err := feeds.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := feeds.Append(ctx, tx, entry("master", "job-tx", "Tx")); err != nil {
		t.Fatalf("Append in tx failed: %v", err)
	}
	if _, err := feeds.Append(ctx, tx, entry(feed.RepoFeedID("octo/widgets"), "job-tx", "Tx")); err != nil {
		t.Fatalf("Append in tx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	entries, err := feeds.Entries(ctx, "master")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rolled back append must not persist, got %d entries", len(entries))
	}
}

func TestEntriesOrderAndFeedIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	feeds := feed.NewStore(store.DB())

	ctx := context.Background()
	for _, jobID := range []string{"a", "b", "c"} {
		if _, err := feeds.Append(ctx, nil, entry("master", jobID, strings.ToUpper(jobID))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := feeds.Entries(ctx, "master")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 3 || entries[0].Title != "A" || entries[2].Title != "C" {
		t.Fatalf("entries out of order: %#v", entries)
	}

	ids, err := feeds.FeedIDs(ctx)
	if err != nil {
		t.Fatalf("FeedIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "master" {
		t.Fatalf("unexpected feed ids: %v", ids)
	}
}

func TestAppendValidatesEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	feeds := feed.NewStore(store.DB())

	bad := entry("master", "job-1", "Title")
	bad.Title = ""
	if _, err := feeds.Append(context.Background(), nil, bad); err == nil {
		t.Fatal("expected validation error for empty title")
	}
}
