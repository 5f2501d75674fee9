package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify collaborator and stage failures. The
// orchestrator never inspects error content to infer retryability; it relies
// on these tags being attached at the point the failure is observed.
var (
	// ErrTransient marks failures worth retrying with backoff (network,
	// timeout, rate limit).
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures where retrying with identical input cannot
	// help (malformed output, resource gone).
	ErrPermanent = errors.New("permanent failure")
	// ErrValidation marks locally detected bad input.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or unusable configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrSuperseded marks jobs that are no longer relevant (PR closed without
	// merge, replaced by a newer attempt). Distinct from true failures.
	ErrSuperseded = errors.New("superseded")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether the error is tagged retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsSuperseded reports whether the error marks the job as no longer relevant.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}

// IsPermanent reports whether the error is tagged terminal. Validation,
// configuration, and superseded errors are terminal as well: retrying with
// identical input cannot change the outcome.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrSuperseded)
}

// ErrorDetails carries the classified pieces of a stage failure for logging.
type ErrorDetails struct {
	Kind    string
	Message string
	Cause   error
}

// Details extracts structured failure information from a stage error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := "unknown"
	switch {
	case errors.Is(err, ErrSuperseded):
		kind = "superseded"
	case errors.Is(err, ErrValidation):
		kind = "validation"
	case errors.Is(err, ErrConfiguration):
		kind = "configuration"
	case errors.Is(err, ErrPermanent):
		kind = "permanent"
	case errors.Is(err, ErrTransient):
		kind = "transient"
	}
	return ErrorDetails{
		Kind:    kind,
		Message: strings.TrimSpace(err.Error()),
		Cause:   errors.Unwrap(err),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
