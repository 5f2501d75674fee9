package workflow

import (
	"context"

	"prcast/internal/queue"
	"prcast/internal/stage"
)

// Health reports the readiness of every stage plus queue totals.
type Health struct {
	Stages []stage.Health
	Queue  queue.HealthSummary
}

// Ready reports whether every stage passed its health check.
func (h Health) Ready() bool {
	for _, s := range h.Stages {
		if !s.Ready {
			return false
		}
	}
	return true
}

// Health runs every stage health check and aggregates queue counts.
func (m *Manager) Health(ctx context.Context) (Health, error) {
	summary, err := m.store.Health(ctx)
	if err != nil {
		return Health{}, err
	}
	var stages []stage.Health
	for _, handler := range []stage.Handler{m.handlers.Collector, m.handlers.Scripter, m.handlers.Renderer, m.handlers.Publisher} {
		if handler == nil {
			continue
		}
		stages = append(stages, handler.HealthCheck(ctx))
	}
	return Health{Stages: stages, Queue: summary}, nil
}
