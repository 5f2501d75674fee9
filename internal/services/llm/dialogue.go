package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"prcast/internal/services"
	"prcast/internal/services/github"
)

// Host identifiers used in dialogue turns.
const (
	HostA = "a"
	HostB = "b"
)

// Turn is one spoken line attributed to a host.
type Turn struct {
	Host string `json:"host"`
	Text string `json:"text"`
}

// Dialogue is the generated episode script.
type Dialogue struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Turns       []Turn    `json:"turns"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
}

// ScriptRequest carries the collected context and presentation settings for
// one script generation call.
type ScriptRequest struct {
	Context   *github.PRContext
	EventKind string
	HostAName string
	HostBName string
}

func (r ScriptRequest) validate() error {
	switch {
	case r.Context == nil:
		return services.Wrap(services.ErrValidation, "scripting", "generate", "pr context required", nil)
	case strings.TrimSpace(r.HostAName) == "" || strings.TrimSpace(r.HostBName) == "":
		return services.Wrap(services.ErrValidation, "scripting", "generate", "host names required", nil)
	}
	return nil
}

func decodeDialogue(content string) (*Dialogue, error) {
	content = stripCodeFences(content)
	var dialogue Dialogue
	if err := json.Unmarshal([]byte(content), &dialogue); err != nil {
		return nil, fmt.Errorf("parse dialogue: %w", err)
	}
	dialogue.Title = strings.TrimSpace(dialogue.Title)
	dialogue.Summary = strings.TrimSpace(dialogue.Summary)
	if dialogue.Title == "" {
		return nil, errors.New("dialogue title is empty")
	}
	if len(dialogue.Turns) == 0 {
		return nil, errors.New("dialogue has no turns")
	}
	cleaned := make([]Turn, 0, len(dialogue.Turns))
	for i, turn := range dialogue.Turns {
		host := strings.ToLower(strings.TrimSpace(turn.Host))
		text := strings.TrimSpace(turn.Text)
		if host != HostA && host != HostB {
			return nil, fmt.Errorf("turn %d: unknown host %q", i, turn.Host)
		}
		if text == "" {
			continue
		}
		cleaned = append(cleaned, Turn{Host: host, Text: text})
	}
	if len(cleaned) == 0 {
		return nil, errors.New("dialogue has no speakable turns")
	}
	dialogue.Turns = cleaned
	return &dialogue, nil
}

// stripCodeFences tolerates models that wrap JSON in markdown fences despite
// the json response format request.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
