package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument marks bad caller input: empty entry sets, unknown
	// strategies, missing paths, duplicates without override.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrExternalTool marks subprocess failures and unparsable tool output.
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	// ErrUnfittable is returned when no pruning attempt fits the capacity.
	ErrUnfittable = errors.New("content does not fit capacity")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failure may succeed on another attempt. Caller
// mistakes and configuration problems never are.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// Outcome maps an error to the short status recorded in the run catalog.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrUnfittable):
		return "unfittable"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return "rejected"
	default:
		return "failed"
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
