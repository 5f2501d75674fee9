package stage

import (
	"context"

	"prcast/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
// Prepare validates that the job carries the inputs the stage needs; Execute
// performs the work and stores its output on the job. The manager persists the
// job after a successful Execute.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
