// Package audit implements the append-only JSONL log of security-relevant
// events: every command proposal, approval/denial decision, block, and
// execution is recorded independently of the conversational journal.
package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/unixagent/unixagent/internal/risk"
)

// Kind discriminates an audit event.
type Kind string

const (
	KindProposed     Kind = "proposed"
	KindApproved     Kind = "approved"
	KindDenied       Kind = "denied"
	KindBlocked      Kind = "blocked"
	KindExecuted     Kind = "executed"
	KindJudgeResult  Kind = "judge_result"
)

// Event is one audit log line. Fields are populated according to Kind.
type Event struct {
	Kind      Kind      `json:"kind"`
	TS        int64     `json:"ts"`
	SessionID string    `json:"session_id"`

	Iteration  int          `json:"iteration,omitempty"`
	Commands   []string     `json:"commands,omitempty"`
	RiskLevels []risk.Level `json:"risk_levels,omitempty"`
	Source     string       `json:"source,omitempty"`

	Method string `json:"method,omitempty"`
	Reason string `json:"reason,omitempty"`

	Command    string `json:"command,omitempty"`
	RiskLevel  risk.Level `json:"risk_level,omitempty"`
	ExitCode   int    `json:"exit_code,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	Safe      bool   `json:"safe,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Log is the audit writer. It is always callable, even if construction
// failed, via the no-op Log returned by NewNoop.
type Log interface {
	Write(Event) error
}

type fileLog struct {
	sessionID string
	mu        sync.Mutex
	f         *os.File
	w         *bufio.Writer
}

// New opens (creating parent dirs) the shared audit log at path.
func New(path, sessionID string) (Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileLog{sessionID: sessionID, f: f, w: bufio.NewWriter(f)}, nil
}

func (l *fileLog) Write(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.TS = time.Now().Unix()
	e.SessionID = l.sessionID

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(line); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

type noopLog struct{}

func (noopLog) Write(Event) error { return nil }

// NewNoop returns a Log that discards every event, so callers never need
// a nil check before logging.
func NewNoop() Log { return noopLog{} }
