package services_test

import (
	"errors"
	"strings"
	"testing"

	"discback/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "image", "estimate", "mkisofs failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"image", "estimate", "mkisofs failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := services.Wrap(services.ErrInvalidArgument, "", "", "", nil)
	if !errors.Is(err, services.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestOutcomeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{services.Wrap(services.ErrUnfittable, "prune", "", "", nil), "unfittable"},
		{services.Wrap(services.ErrInvalidArgument, "image", "add", "duplicate", nil), "rejected"},
		{services.Wrap(services.ErrExternalTool, "image", "write", "", errors.New("exit 1")), "failed"},
	}
	for _, tc := range cases {
		if got := services.Outcome(tc.err); got != tc.want {
			t.Fatalf("Outcome(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrInvalidArgument, "", "", "bad", nil)) {
		t.Fatal("invalid argument should not be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrExternalTool, "", "", "exit", nil)) {
		t.Fatal("external tool failure should be retryable")
	}
}
