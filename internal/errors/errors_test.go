package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := fmt.Errorf("调用失败: %w", Wrap(CodeCollaboratorFailure, cause, "generate"))

	if got := CodeOf(err); got != CodeCollaboratorFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through the chain")
	}
	if !stdErrors.Is(err, New(CodeCollaboratorFailure, "")) {
		t.Fatal("expected errors.Is to match on code")
	}
	if !RetryableError(err) {
		t.Fatal("collaborator failures are retryable by default")
	}
}

func TestDefaultsAndOverrides(t *testing.T) {
	err := New(CodeStorageFailure, "", WithRetryable(false), WithMetadata("table", "jobs"))
	if err.Message() != "storage failure" {
		t.Fatalf("unexpected default message: %q", err.Message())
	}
	if err.Retryable() {
		t.Fatal("expected retryable override to win")
	}
	if err.Metadata()["table"] != "jobs" {
		t.Fatalf("unexpected metadata: %v", err.Metadata())
	}
	if !ShouldAlert(err) {
		t.Fatal("storage failures should alert")
	}
}

func TestUnknownCodesFallBackToInternal(t *testing.T) {
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("unexpected code: %s", got)
	}
	if SeverityOf(New(Code("CUSTOM"), "x")) != SeverityCritical {
		t.Fatal("unregistered codes should use internal attributes")
	}

	Register(Code("CUSTOM"), Attributes{Message: "custom", Severity: SeverityInfo})
	if SeverityOf(New(Code("CUSTOM"), "x")) != SeverityInfo {
		t.Fatal("registered attributes should be used")
	}
}
