package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesCanonicalAndFields(t *testing.T) {
	err := New(
		"scheduler",
		CodeScheduler,
		WithHTTP(503),
		WithMessage("deadline exceeded"),
		WithCanonicalCode(CanonicalDeadline),
		WithField("job_uuid", "abc-123"),
		WithField("group", "delivery"),
		WithCause(errors.New("context deadline exceeded")),
	)

	out := err.Error()
	if !strings.Contains(out, "domain=scheduler") {
		t.Fatalf("expected domain marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=scheduler") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "canonical=deadline") {
		t.Fatalf("expected canonical classification in error string: %s", out)
	}
	expectedFields := "fields=group=\"delivery\",job_uuid=\"abc-123\""
	if !strings.Contains(out, expectedFields) {
		t.Fatalf("expected fields %q in error string: %s", expectedFields, out)
	}
	if !strings.Contains(out, "cause=\"context deadline exceeded\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithCanonicalCodeEmptyDefaultsToUnknown(t *testing.T) {
	err := New("scheduler", CodeScheduler, WithCanonicalCode("   "))
	if err.Canonical != CanonicalUnknown {
		t.Fatalf("expected canonical code to default to unknown, got %q", err.Canonical)
	}
	if strings.Contains(err.Error(), "canonical=") {
		t.Fatalf("canonical marker should be omitted when code is unknown: %s", err.Error())
	}
}

func TestWithFieldMerge(t *testing.T) {
	err := New(
		"storage",
		CodeStorage,
		WithField("path", "/tmp/a.db"),
		WithField("path", "/tmp/b.db"),
	)

	if got := err.Fields["path"]; got != "/tmp/b.db" {
		t.Fatalf("expected latest field to win, got %q", got)
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}

func TestConstructorHelpersClassifyCorrectly(t *testing.T) {
	if got := Storage("open failed", errors.New("disk full")); got.Code != CodeStorage {
		t.Fatalf("expected CodeStorage, got %v", got.Code)
	}
	if got := Serialization("bad json", nil); got.Code != CodeSerialization {
		t.Fatalf("expected CodeSerialization, got %v", got.Code)
	}
	if got := Scheduler(CanonicalDuplicate, "already scheduled", nil); got.Canonical != CanonicalDuplicate {
		t.Fatalf("expected CanonicalDuplicate, got %v", got.Canonical)
	}
	if got := Network("bad gateway", 502, nil); got.HTTP != 502 {
		t.Fatalf("expected HTTP 502, got %d", got.HTTP)
	}
	var target *E
	if !errors.As(Storage("x", errors.New("y")), &target) {
		t.Fatalf("expected errors.As to unwrap to *E")
	}
}
