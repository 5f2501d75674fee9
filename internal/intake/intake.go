// Package intake turns pull request lifecycle events into queue jobs. Intake
// is the only component that creates jobs: webhook deliveries, manual CLI
// submissions, and failed-job resubmissions all pass through Submit.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"prcast/internal/config"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
)

// Event describes one pull request lifecycle notification.
type Event struct {
	Repo       string
	PRNumber   int
	Action     string
	Merged     bool
	DeliveryID string
}

// Disposition reports what Submit did with an event.
type Disposition string

const (
	// DispositionAccepted means a new job record was created.
	DispositionAccepted Disposition = "accepted"
	// DispositionDuplicate means a live or finished job already covers the
	// delivery; nothing was created.
	DispositionDuplicate Disposition = "duplicate"
	// DispositionResubmitted means the prior attempt failed and a fresh
	// attempt record was created.
	DispositionResubmitted Disposition = "resubmitted"
	// DispositionIgnored means the event does not trigger an episode.
	DispositionIgnored Disposition = "ignored"
)

// Result is the outcome of submitting one event.
type Result struct {
	Disposition Disposition
	Job         *queue.Job
}

// Intake validates, filters, and deduplicates incoming events.
type Intake struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// New builds an intake bound to the given store and configuration.
func New(store *queue.Store, cfg *config.Config, logger *slog.Logger) *Intake {
	return &Intake{store: store, cfg: cfg, logger: logging.NewComponentLogger(logger, "intake")}
}

// Submit processes one event. Eligible events become jobs exactly once per
// delivery: resubmitting the same delivery while a job is live or done returns
// the existing record, and resubmitting after a failure creates a fresh
// attempt that supersedes the failed one.
func (i *Intake) Submit(ctx context.Context, event Event) (Result, error) {
	if err := validate(event); err != nil {
		return Result{}, err
	}

	eventKind, eligible := i.classify(event)
	if !eligible {
		i.logger.Debug("event ignored",
			logging.String(logging.FieldRepo, event.Repo),
			logging.Int("pr", event.PRNumber),
			logging.String(logging.FieldEventType, event.Action))
		return Result{Disposition: DispositionIgnored}, nil
	}

	latest, err := i.store.FindLatestAttempt(ctx, event.Repo, event.PRNumber, eventKind, event.DeliveryID)
	if err != nil {
		return Result{}, err
	}

	attemptSeq := 0
	supersedes := ""
	if latest != nil {
		if latest.Stage != queue.StageFailed {
			return Result{Disposition: DispositionDuplicate, Job: latest}, nil
		}
		attemptSeq = latest.AttemptSeq + 1
		supersedes = latest.ID
	}

	job := &queue.Job{
		ID:         JobID(event.Repo, event.PRNumber, eventKind, event.DeliveryID, attemptSeq),
		Repo:       event.Repo,
		PRNumber:   event.PRNumber,
		EventKind:  eventKind,
		DeliveryID: event.DeliveryID,
		AttemptSeq: attemptSeq,
		Supersedes: supersedes,
		Stage:      queue.StageCollecting,
	}
	if err := i.store.Insert(ctx, job); err != nil {
		return Result{}, err
	}

	disposition := DispositionAccepted
	if attemptSeq > 0 {
		disposition = DispositionResubmitted
	}
	i.logger.Info("job accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldRepo, job.Repo),
		logging.Int("pr", job.PRNumber),
		logging.String(logging.FieldEventType, eventKind),
		logging.Int("attempt_seq", attemptSeq))
	return Result{Disposition: disposition, Job: job}, nil
}

// Resubmit creates a fresh attempt for a failed job looked up by id.
func (i *Intake) Resubmit(ctx context.Context, jobID string) (Result, error) {
	job, err := i.store.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if job == nil {
		return Result{}, services.Wrap(services.ErrValidation, "intake", "resubmit", fmt.Sprintf("job %s not found", jobID), nil)
	}
	if job.Stage != queue.StageFailed {
		return Result{}, services.Wrap(services.ErrValidation, "intake", "resubmit", fmt.Sprintf("job %s is %s, only failed jobs can be resubmitted", jobID, job.Stage), nil)
	}

	next := &queue.Job{
		ID:         JobID(job.Repo, job.PRNumber, job.EventKind, job.DeliveryID, job.AttemptSeq+1),
		Repo:       job.Repo,
		PRNumber:   job.PRNumber,
		EventKind:  job.EventKind,
		DeliveryID: job.DeliveryID,
		AttemptSeq: job.AttemptSeq + 1,
		Supersedes: job.ID,
		Stage:      queue.StageCollecting,
	}
	if err := i.store.Insert(ctx, next); err != nil {
		return Result{}, err
	}
	i.logger.Info("failed job resubmitted",
		logging.String(logging.FieldJobID, next.ID),
		logging.String("supersedes", job.ID))
	return Result{Disposition: DispositionResubmitted, Job: next}, nil
}

func (i *Intake) classify(event Event) (string, bool) {
	action := strings.ToLower(strings.TrimSpace(event.Action))
	triggers := i.cfg.GitHub.TriggerActions
	matched := len(triggers) == 0 && action == "closed"
	for _, trigger := range triggers {
		if strings.EqualFold(trigger, action) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}
	if i.cfg.GitHub.RequireMerged && !event.Merged {
		return "", false
	}
	kind := action
	if action == "closed" && event.Merged {
		kind = "merged"
	}
	return kind, true
}

func validate(event Event) error {
	switch {
	case strings.TrimSpace(event.Repo) == "" || !strings.Contains(event.Repo, "/"):
		return services.Wrap(services.ErrValidation, "intake", "submit", fmt.Sprintf("repo %q must be owner/name", event.Repo), nil)
	case event.PRNumber <= 0:
		return services.Wrap(services.ErrValidation, "intake", "submit", fmt.Sprintf("pr number %d must be positive", event.PRNumber), nil)
	case strings.TrimSpace(event.DeliveryID) == "":
		return services.Wrap(services.ErrValidation, "intake", "submit", "delivery id is required", nil)
	case strings.TrimSpace(event.Action) == "":
		return services.Wrap(services.ErrValidation, "intake", "submit", "action is required", nil)
	}
	return nil
}

// JobID derives the stable job identifier for a delivery attempt. The first
// attempt hashes only the delivery identity so repeated submissions map to the
// same record; later attempts mix in the sequence number.
func JobID(repo string, prNumber int, eventKind, deliveryID string, attemptSeq int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s", repo, prNumber, eventKind, deliveryID)
	if attemptSeq > 0 {
		fmt.Fprintf(h, "\x00%d", attemptSeq)
	}
	return hex.EncodeToString(h.Sum(nil))
}
