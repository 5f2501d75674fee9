package server

import (
	"time"

	"prcast/internal/queue"
	"prcast/internal/workflow"
)

// JobView is the JSON shape of one queue job.
type JobView struct {
	ID           string     `json:"id"`
	Repo         string     `json:"repo"`
	PRNumber     int        `json:"pr_number"`
	EventKind    string     `json:"event_kind"`
	DeliveryID   string     `json:"delivery_id"`
	AttemptSeq   int        `json:"attempt_seq"`
	Supersedes   string     `json:"supersedes,omitempty"`
	Stage        string     `json:"stage"`
	AttemptCount int        `json:"attempt_count"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	LeaseOwner   string     `json:"lease_owner,omitempty"`
	LeaseExpires *time.Time `json:"lease_expires,omitempty"`
	ErrorReason  string     `json:"error_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// QueueListResponse wraps a queue listing.
type QueueListResponse struct {
	Items []JobView `json:"items"`
}

// QueueItemResponse wraps a single job lookup.
type QueueItemResponse struct {
	Item JobView `json:"item"`
}

// StageHealthView is the JSON shape of one stage health check.
type StageHealthView struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse reports overall readiness.
type HealthResponse struct {
	Ready  bool              `json:"ready"`
	Stages []StageHealthView `json:"stages"`
}

// StatusResponse reports queue totals per lifecycle state and per stage.
type StatusResponse struct {
	Total    int            `json:"total"`
	Waiting  int            `json:"waiting"`
	InFlight int            `json:"in_flight"`
	Retrying int            `json:"retrying"`
	Done     int            `json:"done"`
	Failed   int            `json:"failed"`
	Stages   map[string]int `json:"stages"`
}

func viewFromJob(job *queue.Job) JobView {
	return JobView{
		ID:           job.ID,
		Repo:         job.Repo,
		PRNumber:     job.PRNumber,
		EventKind:    job.EventKind,
		DeliveryID:   job.DeliveryID,
		AttemptSeq:   job.AttemptSeq,
		Supersedes:   job.Supersedes,
		Stage:        string(job.Stage),
		AttemptCount: job.AttemptCount,
		NextRetryAt:  job.NextRetryAt,
		LeaseOwner:   job.LeaseOwner,
		LeaseExpires: job.LeaseExpires,
		ErrorReason:  job.ErrorReason,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func viewFromHealth(health workflow.Health) HealthResponse {
	out := HealthResponse{Ready: health.Ready()}
	for _, st := range health.Stages {
		out.Stages = append(out.Stages, StageHealthView{Name: st.Name, Ready: st.Ready, Detail: st.Detail})
	}
	return out
}
