package sanitize

import (
	"strings"
	"testing"
)

func TestApplyRedactsStrings(t *testing.T) {
	t.Parallel()
	s, err := NewSanitizer([]Rule{
		{Pattern: `\b[\w.+-]+@[\w-]+\.[\w.]+\b`, Replacement: "[EMAIL]"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := [][]any{
		{int64(1), "alice@example.com"},
		{int64(2), "no email here"},
	}
	got := s.Apply(rows)
	if got[0][1] != "[EMAIL]" {
		t.Fatalf("expected email redacted, got %v", got[0][1])
	}
	if got[1][1] != "no email here" {
		t.Fatalf("expected non-matching value unchanged, got %v", got[1][1])
	}
}

func TestApplyMultipleRules(t *testing.T) {
	t.Parallel()
	s, err := NewSanitizer([]Rule{
		{Pattern: `secret`, Replacement: "[REDACTED]"},
		{Pattern: `\d{3}-\d{2}-\d{4}`, Replacement: "[SSN]"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := [][]any{{"secret ssn 123-45-6789"}}
	got := s.Apply(rows)
	if got[0][0] != "[REDACTED] ssn [SSN]" {
		t.Fatalf("unexpected result: %v", got[0][0])
	}
}

func TestApplyLeavesNonStringsAlone(t *testing.T) {
	t.Parallel()
	s, err := NewSanitizer([]Rule{
		{Pattern: `1`, Replacement: "X"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := [][]any{{int64(11), 1.5, true, nil}}
	got := s.Apply(rows)
	if got[0][0] != int64(11) || got[0][1] != 1.5 || got[0][2] != true || got[0][3] != nil {
		t.Fatalf("expected non-string values untouched, got %v", got[0])
	}
}

func TestApplyRecursesIntoNestedValues(t *testing.T) {
	t.Parallel()
	s, err := NewSanitizer([]Rule{
		{Pattern: `secret`, Replacement: "[REDACTED]"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := [][]any{{
		map[string]any{"note": "a secret note", "tags": []any{"secret tag", int64(3)}},
	}}
	got := s.Apply(rows)
	obj := got[0][0].(map[string]any)
	if obj["note"] != "a [REDACTED] note" {
		t.Fatalf("expected nested map value redacted, got %v", obj["note"])
	}
	arr := obj["tags"].([]any)
	if arr[0] != "[REDACTED] tag" {
		t.Fatalf("expected nested array value redacted, got %v", arr[0])
	}
	if arr[1] != int64(3) {
		t.Fatalf("expected nested number untouched, got %v", arr[1])
	}
}

func TestHasRules(t *testing.T) {
	t.Parallel()
	s, err := NewSanitizer(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.HasRules() {
		t.Fatal("expected HasRules to be false with no rules")
	}
	s, err = NewSanitizer([]Rule{{Pattern: `x`, Replacement: "y"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.HasRules() {
		t.Fatal("expected HasRules to be true")
	}
}

func TestNewSanitizerErrorsOnInvalidRegex(t *testing.T) {
	t.Parallel()
	_, err := NewSanitizer([]Rule{
		{Pattern: `[invalid`, Replacement: "x"},
	})
	if err == nil {
		t.Fatal("expected error for invalid regex pattern")
	}
	if !strings.Contains(err.Error(), "invalid regex pattern") {
		t.Fatalf("unexpected error: %v", err)
	}
}
