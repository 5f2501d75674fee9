// Package retrypolicy decides what happens to a job after a stage attempt
// fails. The policy is pure: it inspects the error and the attempt count and
// returns a verdict, it never touches the store or the clock beyond the
// instant it is handed.
package retrypolicy

import (
	"time"

	"prcast/internal/services"
)

// Action is the verdict for a failed attempt.
type Action int

const (
	// ActionRetry reschedules the job at the same stage after a delay.
	ActionRetry Action = iota
	// ActionFail marks the job permanently failed.
	ActionFail
	// ActionAbandon marks the job superseded; no further work, not an error.
	ActionAbandon
)

// Decision carries the verdict plus retry timing when the action is a retry.
type Decision struct {
	Action  Action
	Delay   time.Duration
	RetryAt time.Time
	Reason  string
}

// Policy computes retry decisions from configuration.
type Policy struct {
	// BaseDelay seeds the exponential backoff for the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// MaxAttempts bounds attempts per stage; once reached the job fails.
	MaxAttempts int
}

// Decide returns the verdict for a stage attempt that failed with err.
// attemptCount is the number of attempts already made at this stage,
// including the one that just failed.
func (p Policy) Decide(attemptCount int, err error, now time.Time) Decision {
	reason := ""
	if err != nil {
		reason = err.Error()
	}

	switch {
	case services.IsSuperseded(err):
		return Decision{Action: ActionAbandon, Reason: reason}
	case err == nil:
		// A nil error is a caller bug; treat it as permanent rather than loop.
		return Decision{Action: ActionFail, Reason: "retry policy invoked without error"}
	case !services.IsTransient(err):
		return Decision{Action: ActionFail, Reason: reason}
	case p.MaxAttempts > 0 && attemptCount >= p.MaxAttempts:
		return Decision{Action: ActionFail, Reason: "retries exhausted: " + reason}
	}

	delay := p.delayFor(attemptCount)
	return Decision{
		Action:  ActionRetry,
		Delay:   delay,
		RetryAt: now.Add(delay),
		Reason:  reason,
	}
}

func (p Policy) delayFor(attemptCount int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attemptCount; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
