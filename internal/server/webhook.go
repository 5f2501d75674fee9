package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"prcast/internal/intake"
	"prcast/internal/logging"
	"prcast/internal/services"
)

const maxWebhookBody = 1 << 20

// pullRequestPayload is the subset of the GitHub pull_request event we act on.
type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Number int  `json:"number"`
		Merged bool `json:"merged"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "body unreadable")
		return
	}
	if !s.verifySignature(r, body) {
		s.logger.Warn("webhook signature rejected",
			logging.String("delivery_id", r.Header.Get("X-GitHub-Delivery")))
		s.writeError(w, http.StatusUnauthorized, "signature mismatch")
		return
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "ping":
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	case "pull_request":
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{"disposition": string(intake.DispositionIgnored)})
		return
	}

	var payload pullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}
	number := payload.Number
	if number == 0 {
		number = payload.PullRequest.Number
	}

	result, err := s.intake.Submit(r.Context(), intake.Event{
		Repo:       payload.Repository.FullName,
		PRNumber:   number,
		Action:     payload.Action,
		Merged:     payload.PullRequest.Merged,
		DeliveryID: r.Header.Get("X-GitHub-Delivery"),
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("webhook intake failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "intake failed")
		return
	}

	response := map[string]string{"disposition": string(result.Disposition)}
	if result.Job != nil {
		response["job_id"] = result.Job.ID
	}
	status := http.StatusOK
	if result.Disposition == intake.DispositionAccepted || result.Disposition == intake.DispositionResubmitted {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, response)
}

// verifySignature checks the X-Hub-Signature-256 HMAC against the shared
// secret. With no secret configured every delivery is accepted.
func (s *Server) verifySignature(r *http.Request, body []byte) bool {
	secret := strings.TrimSpace(s.cfg.GitHub.WebhookSecret)
	if secret == "" {
		return true
	}
	header := r.Header.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, "sha256=")))
}
