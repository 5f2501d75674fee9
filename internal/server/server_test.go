package server_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"prcast/internal/config"
	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/server"
	"prcast/internal/stage"
	"prcast/internal/testsupport"
	"prcast/internal/workflow"
)

const testSecret = "webhook-secret"

type staticHealth struct {
	health workflow.Health
}

func (s staticHealth) Health(ctx context.Context) (workflow.Health, error) {
	return s.health, nil
}

func newTestServer(t *testing.T, opts ...testsupport.ConfigOption) (*httptest.Server, *queue.Store, *config.Config) {
	t.Helper()
	opts = append(opts, testsupport.WithWebhookSecret(testSecret))
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	in := intake.New(store, cfg, logging.NewNop())
	health := staticHealth{health: workflow.Health{Stages: []stage.Health{stage.Healthy("collecting")}}}

	srv := server.New(cfg, store, in, health, logging.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, cfg
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(repo string, number int, action string, merged bool) []byte {
	payload := map[string]any{
		"action": action,
		"number": number,
		"pull_request": map[string]any{
			"number": number,
			"merged": merged,
		},
		"repository": map[string]any{
			"full_name": repo,
		},
	}
	body, _ := json.Marshal(payload)
	return body
}

func postWebhook(t *testing.T, ts *httptest.Server, body []byte, event, delivery, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/github", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", delivery)
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]string {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestWebhookCreatesJob(t *testing.T) {
	ts, store, _ := newTestServer(t)

	body := webhookBody("octo/widgets", 7, "closed", true)
	resp := postWebhook(t, ts, body, "pull_request", "delivery-1", signBody(body))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	out := decodeBody(t, resp)
	if out["disposition"] != "accepted" || out["job_id"] == "" {
		t.Fatalf("unexpected response: %v", out)
	}

	job, err := store.GetByID(context.Background(), out["job_id"])
	if err != nil || job == nil {
		t.Fatalf("job not stored: %v %v", job, err)
	}
	if job.Repo != "octo/widgets" || job.PRNumber != 7 || job.EventKind != "merged" {
		t.Fatalf("unexpected job: %#v", job)
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := webhookBody("octo/widgets", 7, "closed", true)
	resp := postWebhook(t, ts, body, "pull_request", "delivery-1", signBody(body))
	resp.Body.Close()
	resp = postWebhook(t, ts, body, "pull_request", "delivery-1", signBody(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", resp.StatusCode)
	}
	out := decodeBody(t, resp)
	if out["disposition"] != "duplicate" {
		t.Fatalf("unexpected response: %v", out)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := webhookBody("octo/widgets", 7, "closed", true)
	resp := postWebhook(t, ts, body, "pull_request", "delivery-1", "sha256=deadbeef")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = postWebhook(t, ts, body, "pull_request", "delivery-2", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", resp.StatusCode)
	}
}

func TestWebhookPing(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := []byte(`{"zen":"Keep it logically awesome."}`)
	resp := postWebhook(t, ts, body, "ping", "delivery-ping", signBody(body))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	ts, store, _ := newTestServer(t)

	body := []byte(`{"ref":"refs/heads/main"}`)
	resp := postWebhook(t, ts, body, "push", "delivery-push", signBody(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	out := decodeBody(t, resp)
	if out["disposition"] != "ignored" {
		t.Fatalf("unexpected response: %v", out)
	}

	summary, err := store.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("no job should exist, got %d", summary.Total)
	}
}

func TestWebhookValidationError(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body := webhookBody("", 0, "closed", true)
	resp := postWebhook(t, ts, body, "pull_request", "delivery-bad", signBody(body))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthzReportsReady(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !payload.Ready || len(payload.Stages) != 1 {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestStatusCountsJobs(t *testing.T) {
	ts, store, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		testsupport.NewJob(t, store, &queue.Job{
			ID:         fmt.Sprintf("job-%d", i),
			Repo:       "octo/widgets",
			PRNumber:   i + 1,
			EventKind:  "merged",
			DeliveryID: fmt.Sprintf("delivery-%d", i),
			Stage:      queue.StageCollecting,
		})
	}

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()
	var payload server.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if payload.Total != 3 || payload.Stages["collecting"] != 3 {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestQueueListAndItem(t *testing.T) {
	ts, store, _ := newTestServer(t)

	testsupport.NewJob(t, store, &queue.Job{
		ID:         "job-list",
		Repo:       "octo/widgets",
		PRNumber:   9,
		EventKind:  "merged",
		DeliveryID: "delivery-list",
		Stage:      queue.StageScripting,
	})

	resp, err := http.Get(ts.URL + "/api/queue?stage=scripting")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var list server.QueueListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if len(list.Items) != 1 || list.Items[0].ID != "job-list" {
		t.Fatalf("unexpected listing: %#v", list)
	}

	resp, err = http.Get(ts.URL + "/api/queue/job-list")
	if err != nil {
		t.Fatalf("item request failed: %v", err)
	}
	var item server.QueueItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if item.Item.Stage != "scripting" {
		t.Fatalf("unexpected item: %#v", item)
	}

	resp, err = http.Get(ts.URL + "/api/queue/missing")
	if err != nil {
		t.Fatalf("missing item request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestQueueRetryEndpoint(t *testing.T) {
	ts, store, _ := newTestServer(t)

	job := testsupport.NewJob(t, store, &queue.Job{
		ID:         "job-failed",
		Repo:       "octo/widgets",
		PRNumber:   4,
		EventKind:  "merged",
		DeliveryID: "delivery-failed",
		Stage:      queue.StageFailed,
	})

	resp, err := http.Post(ts.URL+"/api/queue/"+job.ID+"/retry", "application/json", nil)
	if err != nil {
		t.Fatalf("retry request failed: %v", err)
	}
	var item server.QueueItemResponse
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if item.Item.Supersedes != job.ID || item.Item.Stage != "collecting" {
		t.Fatalf("unexpected retry result: %#v", item)
	}

	// A live job cannot be retried.
	resp, err = http.Post(ts.URL+"/api/queue/"+item.Item.ID+"/retry", "application/json", nil)
	if err != nil {
		t.Fatalf("second retry request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestFeedFileServing(t *testing.T) {
	ts, _, cfg := newTestServer(t)

	path := filepath.Join(cfg.Paths.FeedsDir, "master.xml")
	if err := os.WriteFile(path, []byte("<rss/>"), 0o644); err != nil {
		t.Fatalf("write feed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/feeds/master.xml")
	if err != nil {
		t.Fatalf("feed request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
