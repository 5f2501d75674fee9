package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"prcast/internal/daemon"
	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/testsupport"
)

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "diff") {
			_, _ = w.Write([]byte("diff --git a/main.go b/main.go\n+func main() {}\n"))
			return
		}
		_, _ = w.Write([]byte(`{
            "number": 7,
            "title": "Speed up startup",
            "body": "Lazy-load the cache.",
            "state": "closed",
            "merged": true,
            "html_url": "https://github.com/octo/widgets/pull/7",
            "user": {"login": "octocat"},
            "base": {"ref": "main"},
            "head": {"ref": "lazy-cache"}
        }`))
	})
	mux.HandleFunc("/repos/octo/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/repos/octo/widgets/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/repos/octo/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func fakeLLM(t *testing.T) *httptest.Server {
	t.Helper()
	dialogue := `{"title":"Speed up startup","summary":"Lazy cache loading.","turns":[` +
		`{"host":"a","text":"Today we look at a startup speedup."},` +
		`{"host":"b","text":"Lazy-loading the cache, nice."}]}`
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": dialogue}},
		},
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func fakeTTS(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0xFF, 0xFB, 0x90, 0xC4, 0x00, 0x00})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer first.Close()

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := daemon.Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err == nil {
		t.Fatal("second instance must not start")
	}

	status := first.Status(ctx)
	if !status.Running || status.APIAddress == "" {
		t.Fatalf("unexpected status: %#v", status)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart after release failed: %v", err)
	}
	second.Stop()
}

func TestDaemonProducesEpisodeEndToEnd(t *testing.T) {
	github := fakeGitHub(t)
	llm := fakeLLM(t)
	tts := fakeTTS(t)

	cfg := testsupport.NewConfig(t,
		testsupport.WithGitHubBaseURL(github.URL),
		testsupport.WithLLMBaseURL(llm.URL),
		testsupport.WithTTSBaseURL(tts.URL),
		testsupport.WithWorkers(2),
	)
	cfg.Workflow.QueuePollInterval = 1

	d, err := daemon.Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	result, err := d.Submit(ctx, intake.Event{
		Repo:       "octo/widgets",
		PRNumber:   7,
		Action:     "closed",
		Merged:     true,
		DeliveryID: "delivery-e2e",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.Disposition != intake.DispositionAccepted {
		t.Fatalf("unexpected disposition: %s", result.Disposition)
	}

	apiBase := "http://" + d.Status(ctx).APIAddress
	deadline := time.Now().Add(30 * time.Second)
	var stage string
	for time.Now().Before(deadline) {
		stage = jobStage(t, apiBase, result.Job.ID)
		if stage == "done" || stage == "failed" {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if stage != "done" {
		t.Fatalf("job did not finish, last stage %q", stage)
	}

	for _, name := range []string{"master.xml", "octo-widgets.xml"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.FeedsDir, name)); err != nil {
			t.Fatalf("feed %s missing: %v", name, err)
		}
	}
	audioPath := filepath.Join(cfg.Paths.AudioDir, "octo-widgets", result.Job.ID+".mp3")
	if _, err := os.Stat(audioPath); err != nil {
		t.Fatalf("episode audio missing: %v", err)
	}
}

func jobStage(t *testing.T, apiBase, jobID string) string {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("%s/api/queue/%s", apiBase, jobID))
	if err != nil {
		t.Fatalf("queue item request failed: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Item struct {
			Stage string `json:"stage"`
		} `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode queue item: %v", err)
	}
	return payload.Item.Stage
}
