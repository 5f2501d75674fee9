package queue_test

import (
	"testing"
	"time"

	"prcast/internal/queue"
)

func TestStageNextWalksPipeline(t *testing.T) {
	order := []queue.Stage{
		queue.StageCollecting,
		queue.StageScripting,
		queue.StageRendering,
		queue.StagePublishing,
		queue.StageDone,
	}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		if !ok || next != order[i+1] {
			t.Fatalf("Next(%s) = %s, %v", order[i], next, ok)
		}
	}
	if _, ok := queue.StageDone.Next(); ok {
		t.Fatal("done must be terminal")
	}
	if _, ok := queue.StageFailed.Next(); ok {
		t.Fatal("failed must be terminal")
	}
}

func TestStageAfter(t *testing.T) {
	if !queue.StageRendering.After(queue.StageCollecting) {
		t.Fatal("rendering comes after collecting")
	}
	if queue.StageCollecting.After(queue.StageRendering) {
		t.Fatal("collecting does not come after rendering")
	}
	if !queue.StageFailed.After(queue.StagePublishing) {
		t.Fatal("failed compares after work stages")
	}
	if queue.StageFailed.After(queue.StageDone) {
		t.Fatal("failed does not come after done")
	}
}

func TestParseStage(t *testing.T) {
	stage, ok := queue.ParseStage("  Scripting ")
	if !ok || stage != queue.StageScripting {
		t.Fatalf("ParseStage = %s, %v", stage, ok)
	}
	if _, ok := queue.ParseStage("shipping"); ok {
		t.Fatal("unknown stage must not parse")
	}
}

func TestJobAdvanceResetsRetryState(t *testing.T) {
	retryAt := time.Now().UTC().Add(time.Minute)
	job := &queue.Job{Stage: queue.StageCollecting}
	job.ScheduleRetry(retryAt, "rate limited")
	if job.AttemptCount != 1 || job.NextRetryAt == nil || job.ErrorReason == "" {
		t.Fatalf("retry state not recorded: %#v", job)
	}

	if !job.Advance() {
		t.Fatal("advance from collecting must succeed")
	}
	if job.Stage != queue.StageScripting {
		t.Fatalf("unexpected stage: %s", job.Stage)
	}
	if job.AttemptCount != 0 || job.NextRetryAt != nil || job.ErrorReason != "" {
		t.Fatalf("retry state must reset on advance: %#v", job)
	}

	job.Stage = queue.StageDone
	if job.Advance() {
		t.Fatal("terminal stage must not advance")
	}
}

func TestJobFailAndLeased(t *testing.T) {
	now := time.Now().UTC()
	expires := now.Add(time.Minute)
	job := &queue.Job{Stage: queue.StageRendering, LeaseExpires: &expires}

	if !job.Leased(now) {
		t.Fatal("lease is live")
	}
	if job.Leased(now.Add(2 * time.Minute)) {
		t.Fatal("lease has lapsed")
	}

	job.Fail("tts voice missing")
	if job.Stage != queue.StageFailed || job.ErrorReason != "tts voice missing" || job.NextRetryAt != nil {
		t.Fatalf("unexpected failure state: %#v", job)
	}
}
