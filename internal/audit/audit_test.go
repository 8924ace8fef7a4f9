package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/unixagent/unixagent/internal/risk"
)

func readLines(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "audit.jsonl")

	log, err := New(path, "sess-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if fl, ok := log.(*fileLog); ok {
		defer fl.f.Close()
	}
}

func TestWriteStampsSessionIDAndTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log, err := New(path, "sess-42")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := log.Write(Event{Kind: KindProposed, Command: "ls -la", RiskLevel: risk.ReadOnly}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	events := readLines(t, path)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].SessionID != "sess-42" {
		t.Fatalf("expected session id stamped, got %q", events[0].SessionID)
	}
	if events[0].TS == 0 {
		t.Fatalf("expected timestamp stamped, got zero")
	}
	if events[0].Command != "ls -la" || events[0].Kind != KindProposed {
		t.Fatalf("unexpected event contents: %+v", events[0])
	}
}

func TestWriteAppendsMultipleEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log, err := New(path, "sess-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := log.Write(Event{Kind: KindApproved, Method: "manual"}); err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	if err := log.Write(Event{Kind: KindDenied, Reason: "too risky"}); err != nil {
		t.Fatalf("Write 2: %v", err)
	}

	events := readLines(t, path)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindApproved || events[1].Kind != KindDenied {
		t.Fatalf("unexpected event kinds: %+v", events)
	}
}

func TestNewNoopDiscardsWithoutError(t *testing.T) {
	log := NewNoop()
	if err := log.Write(Event{Kind: KindExecuted}); err != nil {
		t.Fatalf("expected noop Write to never error, got %v", err)
	}
}
