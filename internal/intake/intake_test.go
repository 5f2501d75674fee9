package intake_test

import (
	"context"
	"errors"
	"testing"

	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
	"prcast/internal/testsupport"
)

func mergedEvent(delivery string) intake.Event {
	return intake.Event{
		Repo:       "octo/widgets",
		PRNumber:   42,
		Action:     "closed",
		Merged:     true,
		DeliveryID: delivery,
	}
}

func TestSubmitCreatesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())

	result, err := in.Submit(context.Background(), mergedEvent("d-1"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Disposition != intake.DispositionAccepted {
		t.Fatalf("expected accepted, got %s", result.Disposition)
	}
	if result.Job == nil || result.Job.Stage != queue.StageCollecting {
		t.Fatalf("unexpected job: %#v", result.Job)
	}
	if result.Job.EventKind != "merged" {
		t.Fatalf("merged close should map to merged kind, got %q", result.Job.EventKind)
	}
	if len(result.Job.ID) != 64 {
		t.Fatalf("expected hex sha256 id, got %q", result.Job.ID)
	}
}

func TestSubmitIsIdempotentPerDelivery(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())

	ctx := context.Background()
	first, err := in.Submit(ctx, mergedEvent("d-dup"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	second, err := in.Submit(ctx, mergedEvent("d-dup"))
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if second.Disposition != intake.DispositionDuplicate {
		t.Fatalf("expected duplicate, got %s", second.Disposition)
	}
	if second.Job.ID != first.Job.ID {
		t.Fatalf("duplicate must return the existing job: %s vs %s", second.Job.ID, first.Job.ID)
	}

	jobs, err := store.ListByStage(ctx)
	if err != nil {
		t.Fatalf("ListByStage failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected a single record, got %d", len(jobs))
	}
}

func TestSubmitAfterFailureCreatesNewAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())

	ctx := context.Background()
	first, err := in.Submit(ctx, mergedEvent("d-retry"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	first.Job.Fail("llm rejected input")
	if err := store.Persist(ctx, first.Job); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	second, err := in.Submit(ctx, mergedEvent("d-retry"))
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if second.Disposition != intake.DispositionResubmitted {
		t.Fatalf("expected resubmitted, got %s", second.Disposition)
	}
	if second.Job.ID == first.Job.ID {
		t.Fatal("new attempt must get a fresh id")
	}
	if second.Job.AttemptSeq != 1 || second.Job.Supersedes != first.Job.ID {
		t.Fatalf("attempt lineage not recorded: %#v", second.Job)
	}
	if second.Job.Stage != queue.StageCollecting {
		t.Fatalf("new attempt must start at collecting, got %s", second.Job.Stage)
	}
}

func TestSubmitIgnoresNonTriggeringEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())

	ctx := context.Background()
	unmerged := mergedEvent("d-unmerged")
	unmerged.Merged = false
	result, err := in.Submit(ctx, unmerged)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Disposition != intake.DispositionIgnored {
		t.Fatalf("unmerged close should be ignored, got %s", result.Disposition)
	}

	opened := mergedEvent("d-opened")
	opened.Action = "opened"
	result, err = in.Submit(ctx, opened)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Disposition != intake.DispositionIgnored {
		t.Fatalf("non-trigger action should be ignored, got %s", result.Disposition)
	}
}

func TestSubmitValidatesEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())

	ctx := context.Background()
	cases := []intake.Event{
		{Repo: "widgets", PRNumber: 1, Action: "closed", Merged: true, DeliveryID: "d"},
		{Repo: "octo/widgets", PRNumber: 0, Action: "closed", Merged: true, DeliveryID: "d"},
		{Repo: "octo/widgets", PRNumber: 1, Action: "closed", Merged: true, DeliveryID: ""},
		{Repo: "octo/widgets", PRNumber: 1, Action: "", Merged: true, DeliveryID: "d"},
	}
	for _, event := range cases {
		if _, err := in.Submit(ctx, event); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("event %#v: expected validation error, got %v", event, err)
		}
	}
}

func TestResubmitRequiresFailedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())

	ctx := context.Background()
	result, err := in.Submit(ctx, mergedEvent("d-live"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := in.Resubmit(ctx, result.Job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("resubmitting a live job must fail validation, got %v", err)
	}
	if _, err := in.Resubmit(ctx, "missing"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("resubmitting an unknown job must fail validation, got %v", err)
	}
}

func TestJobIDStableAndAttemptScoped(t *testing.T) {
	base := intake.JobID("octo/widgets", 42, "merged", "d-1", 0)
	same := intake.JobID("octo/widgets", 42, "merged", "d-1", 0)
	if base != same {
		t.Fatal("job id must be deterministic")
	}
	next := intake.JobID("octo/widgets", 42, "merged", "d-1", 1)
	if next == base {
		t.Fatal("attempt sequence must change the id")
	}
	other := intake.JobID("octo/widgets", 42, "merged", "d-2", 0)
	if other == base {
		t.Fatal("delivery id must change the id")
	}
}
