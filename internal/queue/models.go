package queue

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage identifies the next unit of pipeline work for a job. A job sitting at
// a stage has completed every earlier stage and none of the later ones.
type Stage string

const (
	StageCollecting Stage = "collecting"
	StageScripting  Stage = "scripting"
	StageRendering  Stage = "rendering"
	StagePublishing Stage = "publishing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// SupersededReason is the error reason recorded when a job is abandoned
// because its PR is no longer relevant.
const SupersededReason = "superseded"

var stageOrder = []Stage{
	StageCollecting,
	StageScripting,
	StageRendering,
	StagePublishing,
	StageDone,
}

var stageRank = func() map[Stage]int {
	ranks := make(map[Stage]int, len(stageOrder))
	for i, stage := range stageOrder {
		ranks[stage] = i
	}
	return ranks
}()

// WorkStages returns the stages that represent claimable work, in pipeline order.
func WorkStages() []Stage {
	return []Stage{StageCollecting, StageScripting, StageRendering, StagePublishing}
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StageCollecting, StageScripting, StageRendering, StagePublishing, StageDone, StageFailed:
		return normalized, true
	}
	return "", false
}

// Next returns the stage that follows s in the fixed pipeline sequence.
// The second return is false for terminal stages.
func (s Stage) Next() (Stage, bool) {
	rank, ok := stageRank[s]
	if !ok || rank >= len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[rank+1], true
}

// After reports whether s comes strictly after other in the pipeline sequence.
// Failed compares after every work stage so the no-backward invariant treats
// the sideways transition as forward.
func (s Stage) After(other Stage) bool {
	if s == StageFailed {
		return other != StageFailed && other != StageDone
	}
	a, okA := stageRank[s]
	b, okB := stageRank[other]
	return okA && okB && a > b
}

// Terminal reports whether the stage ends the pipeline.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

var labelCaser = cases.Title(language.English)

// Label returns a user-facing label for the stage.
func (s Stage) Label() string {
	return labelCaser.String(string(s))
}

// Job is the unit of work: one attempt to turn a PR event into a published
// episode.
type Job struct {
	ID           string
	Repo         string
	PRNumber     int
	EventKind    string
	DeliveryID   string
	AttemptSeq   int
	Supersedes   string
	Stage        Stage
	AttemptCount int
	NextRetryAt  *time.Time
	LeaseOwner   string
	LeaseExpires *time.Time
	ErrorReason  string
	ContextJSON  string
	ScriptJSON   string
	AudioJSON    string
	EpisodeJSON  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

// Leased reports whether the job holds a live lease at the given instant.
func (j *Job) Leased(now time.Time) bool {
	return j.LeaseExpires != nil && j.LeaseExpires.After(now)
}

// Advance moves the job to the next stage, clearing retry state. Attempt
// counts are per stage, so they reset on advancement.
func (j *Job) Advance() bool {
	next, ok := j.Stage.Next()
	if !ok {
		return false
	}
	j.Stage = next
	j.AttemptCount = 0
	j.NextRetryAt = nil
	j.ErrorReason = ""
	return true
}

// ScheduleRetry records a failed attempt and the time the job becomes
// claimable again.
func (j *Job) ScheduleRetry(at time.Time, reason string) {
	j.AttemptCount++
	retryAt := at
	j.NextRetryAt = &retryAt
	j.ErrorReason = reason
}

// Fail marks the job permanently failed with the given reason.
func (j *Job) Fail(reason string) {
	j.Stage = StageFailed
	j.NextRetryAt = nil
	j.ErrorReason = reason
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total    int
	Waiting  int
	InFlight int
	Retrying int
	Done     int
	Failed   int
}
