// Package journal implements the append-only per-session JSONL record and
// the context-rebuild function that turns journal history back into a
// token-budgeted conversation.
package journal

import (
	"encoding/json"
	"time"

	"github.com/unixagent/unixagent/internal/protocol"
)

// Type discriminates a JournalEntry's payload.
type Type string

const (
	TypeShellCommand  Type = "shell_command"
	TypeInstruction   Type = "instruction"
	TypeResponse      Type = "response"
	TypeToolResult    Type = "tool_result"
	TypeBlocked       Type = "blocked"
	TypeCheckpoint    Type = "checkpoint"
	TypeSystemPrompt  Type = "system_prompt"
	TypeSummary       Type = "summary"
	TypeUnknown       Type = "unknown"
)

// Attachment is metadata about a file referenced by an instruction. Per
// spec Non-goals, only metadata is stored — never decoded audio/image
// bytes.
type Attachment struct {
	Path        string `json:"path"`
	ByteSize    int64  `json:"byte_size"`
	ContentType string `json:"content_type"`
}

// Entry is the tagged sum over every journal record kind. Only the
// fields relevant to Type are populated; json tags carry omitempty so the
// serialized line stays compact, and unrecognized Type values round-trip
// as TypeUnknown rather than failing to parse (forward compatibility).
type Entry struct {
	Type Type      `json:"type"`
	TS   time.Time `json:"ts"`

	// shell_command
	Command  string `json:"command,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Output   string `json:"output,omitempty"`

	// instruction
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// response
	Thinking string                    `json:"thinking,omitempty"`
	ToolUses []protocol.ToolUseRecord  `json:"tool_uses,omitempty"`

	// tool_result / blocked
	Results []protocol.ToolResultRecord `json:"results,omitempty"`

	// checkpoint
	Summary string `json:"summary,omitempty"`

	// summary
	InputTokens   int     `json:"input_tokens,omitempty"`
	OutputTokens  int     `json:"output_tokens,omitempty"`
	CommandsRun   int     `json:"commands_run,omitempty"`
	CommandsDenied int    `json:"commands_denied,omitempty"`
	SummaryExit   *int    `json:"summary_exit_code,omitempty"`
	ElapsedSecs   float64 `json:"elapsed_secs,omitempty"`
	Task          string  `json:"task,omitempty"`
}

// MarshalLine serializes the entry as a single JSON line (no trailing
// newline — callers append one).
func (e Entry) MarshalLine() ([]byte, error) {
	return json.Marshal(e)
}

// ParseLine deserializes one JSONL line. An entry whose Type is not
// recognized is returned with Type rewritten to TypeUnknown rather than
// erroring, so future entry kinds don't break old readers.
func ParseLine(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, err
	}
	switch e.Type {
	case TypeShellCommand, TypeInstruction, TypeResponse, TypeToolResult,
		TypeBlocked, TypeCheckpoint, TypeSystemPrompt, TypeSummary:
		// recognized
	default:
		e.Type = TypeUnknown
	}
	return e, nil
}
