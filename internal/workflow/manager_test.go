package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"prcast/internal/config"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
	"prcast/internal/stage"
	"prcast/internal/testsupport"
	"prcast/internal/workflow"
)

type scriptedHandler struct {
	name string
	err  error

	mu    sync.Mutex
	calls int
}

func (h *scriptedHandler) Prepare(ctx context.Context, job *queue.Job) error { return nil }

func (h *scriptedHandler) Execute(ctx context.Context, job *queue.Job) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	switch h.name {
	case "collector":
		job.ContextJSON = `{"repo":"octo/widgets"}`
	case "scripter":
		job.ScriptJSON = `{"title":"t","turns":[{"host":"a","text":"hi"}]}`
	case "renderer":
		job.AudioJSON = `{"path":"x.mp3"}`
	case "publisher":
		job.EpisodeJSON = `{"episode_id":"e","title":"Episode Title"}`
	}
	return nil
}

func (h *scriptedHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(h.name)
}

func (h *scriptedHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type recordingNotifier struct {
	mu        sync.Mutex
	published []string
	failed    []string
}

func (n *recordingNotifier) NotifyEpisodePublished(ctx context.Context, repo, title string, pr int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, title)
	return nil
}

func (n *recordingNotifier) NotifyJobFailed(ctx context.Context, repo string, pr int, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, reason)
	return nil
}

func (n *recordingNotifier) TestNotification(ctx context.Context) error { return nil }

func newManager(t *testing.T, cfg *config.Config, store *queue.Store, handlers workflow.StageSet, notifier *recordingNotifier) *workflow.Manager {
	t.Helper()
	if notifier == nil {
		notifier = &recordingNotifier{}
	}
	return workflow.NewManager(cfg, store, handlers, logging.NewNop(), notifier)
}

func healthySet() workflow.StageSet {
	return workflow.StageSet{
		Collector: &scriptedHandler{name: "collector"},
		Scripter:  &scriptedHandler{name: "scripter"},
		Renderer:  &scriptedHandler{name: "renderer"},
		Publisher: &scriptedHandler{name: "publisher"},
	}
}

func insertJob(t *testing.T, store *queue.Store, id string) *queue.Job {
	t.Helper()
	job := &queue.Job{
		ID:         id,
		Repo:       "octo/widgets",
		PRNumber:   42,
		EventKind:  "merged",
		DeliveryID: "delivery-" + id,
		Stage:      queue.StageCollecting,
	}
	return testsupport.NewJob(t, store, job)
}

func TestRunOnceDrivesJobThroughPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	manager := newManager(t, cfg, store, healthySet(), notifier)

	ctx := context.Background()
	insertJob(t, store, "pipeline")

	for i := 0; i < 4; i++ {
		processed, err := manager.RunOnce(ctx, "worker-1")
		if err != nil {
			t.Fatalf("RunOnce %d failed: %v", i, err)
		}
		if !processed {
			t.Fatalf("RunOnce %d found no work", i)
		}
	}

	job, err := store.GetByID(ctx, "pipeline")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Stage != queue.StageDone {
		t.Fatalf("expected done, got %s", job.Stage)
	}
	if job.LeaseOwner != "" || job.LeaseExpires != nil {
		t.Fatalf("lease not cleared: %#v", job)
	}
	if job.ContextJSON == "" || job.ScriptJSON == "" || job.AudioJSON == "" || job.EpisodeJSON == "" {
		t.Fatalf("stage outputs missing: %#v", job)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.published) != 1 || notifier.published[0] != "Episode Title" {
		t.Fatalf("publish notification missing: %v", notifier.published)
	}
}

func TestRunOnceWithoutWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, cfg, store, healthySet(), nil)

	processed, err := manager.RunOnce(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed {
		t.Fatal("expected no work")
	}
}

func TestTransientFailureSchedulesRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := healthySet()
	handlers.Collector = &scriptedHandler{
		name: "collector",
		err:  services.Wrap(services.ErrTransient, "collecting", "fetch", "rate limited", nil),
	}
	manager := newManager(t, cfg, store, handlers, nil)

	ctx := context.Background()
	insertJob(t, store, "retry")

	if _, err := manager.RunOnce(ctx, "worker-1"); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	job, err := store.GetByID(ctx, "retry")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Stage != queue.StageCollecting {
		t.Fatalf("stage must not change on retry, got %s", job.Stage)
	}
	if job.AttemptCount != 1 || job.NextRetryAt == nil {
		t.Fatalf("retry not recorded: %#v", job)
	}
	if !job.NextRetryAt.After(time.Now().UTC()) {
		t.Fatalf("retry time must be in the future: %v", job.NextRetryAt)
	}
	if job.LeaseOwner != "" || job.LeaseExpires != nil {
		t.Fatalf("lease not cleared: %#v", job)
	}
}

func TestPermanentFailureFailsJobAndNotifies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := healthySet()
	handlers.Collector = &scriptedHandler{
		name: "collector",
		err:  services.Wrap(services.ErrPermanent, "collecting", "fetch", "pr deleted", nil),
	}
	notifier := &recordingNotifier{}
	manager := newManager(t, cfg, store, handlers, notifier)

	ctx := context.Background()
	insertJob(t, store, "permanent")

	if _, err := manager.RunOnce(ctx, "worker-1"); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	job, err := store.GetByID(ctx, "permanent")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Stage != queue.StageFailed {
		t.Fatalf("expected failed, got %s", job.Stage)
	}
	if job.ErrorReason == "" {
		t.Fatal("failure reason missing")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.failed) != 1 {
		t.Fatalf("failure notification missing: %v", notifier.failed)
	}
}

func TestRetriesExhaustToFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MaxAttempts = 2
	store := testsupport.MustOpenStore(t, cfg)
	handlers := healthySet()
	collector := &scriptedHandler{
		name: "collector",
		err:  services.Wrap(services.ErrTransient, "collecting", "fetch", "flaky upstream", nil),
	}
	handlers.Collector = collector
	manager := newManager(t, cfg, store, handlers, nil)

	ctx := context.Background()
	insertJob(t, store, "exhaust")

	if _, err := manager.RunOnce(ctx, "worker-1"); err != nil {
		t.Fatalf("first RunOnce failed: %v", err)
	}

	// Force the backoff to elapse so the second attempt is claimable.
	job, err := store.GetByID(ctx, "exhaust")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	job.NextRetryAt = &past
	if err := store.Persist(ctx, job); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	if _, err := manager.RunOnce(ctx, "worker-1"); err != nil {
		t.Fatalf("second RunOnce failed: %v", err)
	}

	job, err = store.GetByID(ctx, "exhaust")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Stage != queue.StageFailed {
		t.Fatalf("expected failure after attempts exhausted, got %s", job.Stage)
	}
	if collector.callCount() != 2 {
		t.Fatalf("expected 2 attempts, got %d", collector.callCount())
	}
}

func TestSupersededJobIsAbandonedWithoutExecuting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	handlers := healthySet()
	collector := handlers.Collector.(*scriptedHandler)
	manager := newManager(t, cfg, store, handlers, nil)

	ctx := context.Background()
	old := insertJob(t, store, "old-attempt")
	newer := &queue.Job{
		ID:         "new-attempt",
		Repo:       old.Repo,
		PRNumber:   old.PRNumber,
		EventKind:  old.EventKind,
		DeliveryID: old.DeliveryID,
		AttemptSeq: 1,
		Supersedes: old.ID,
		Stage:      queue.StageCollecting,
	}
	testsupport.NewJob(t, store, newer)

	// The older attempt is claimed first and must be abandoned, not executed.
	if _, err := manager.RunOnce(ctx, "worker-1"); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	job, err := store.GetByID(ctx, "old-attempt")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if job.Stage != queue.StageFailed || job.ErrorReason != queue.SupersededReason {
		t.Fatalf("expected superseded abandonment, got %#v", job)
	}
	if collector.callCount() != 0 {
		t.Fatalf("superseded job must not execute, got %d calls", collector.callCount())
	}
}

func TestStartProcessesJobsInBackground(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 2
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, cfg, store, healthySet(), nil)

	ctx := context.Background()
	insertJob(t, store, "bg-1")

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(ctx, "bg-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if job.Stage == queue.StageDone {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("job did not finish before deadline")
}

func TestHealthAggregatesStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	manager := newManager(t, cfg, store, healthySet(), nil)

	health, err := manager.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if len(health.Stages) != 4 || !health.Ready() {
		t.Fatalf("unexpected health: %#v", health)
	}
}
