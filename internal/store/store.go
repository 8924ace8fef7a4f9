// Package store resolves the on-disk layout of persisted state:
// ${XDG_DATA_HOME:-$HOME/.local/share}/unixagent, holding the audit
// log and one journal file per session (plus one per child agent).
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir returns the root data directory, creating it if missing.
func Dir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, "unixagent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// AuditPath returns the path to the single shared audit log.
func AuditPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audit.jsonl"), nil
}

func sessionsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	sdir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return "", err
	}
	return sdir, nil
}

// SessionJournalPath returns the journal path for a top-level session.
func SessionJournalPath(sessionID string) (string, error) {
	sdir, err := sessionsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(sdir, sessionID+".jsonl"), nil
}

// AgentJournalPath returns the journal path for a child agent process,
// named by its PID so a parent can find its last line without needing
// the child to report a session id back out-of-band.
func AgentJournalPath(pid int) (string, error) {
	sdir, err := sessionsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(sdir, fmt.Sprintf("agent-%d.jsonl", pid)), nil
}
