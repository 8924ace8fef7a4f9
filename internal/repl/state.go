package repl

// AgentState names where the REPL currently sits in the turn lifecycle.
// The REPL struct carries the auxiliary data each variant needs as plain
// fields rather than as a Rust-style enum payload; State alone decides
// which of those fields are meaningful at any moment.
type AgentState int

const (
	// StateIdle forwards keystrokes to the PTY, intercepting '#' lines
	// at a ready prompt and journaling completed shell commands.
	StateIdle AgentState = iota
	// StateStreaming is consuming a backend stream for the current turn.
	StateStreaming
	// StateJudging is waiting on the judge's verdict for a proposed batch.
	StateJudging
	// StateApproving is waiting on operator input for a proposed batch.
	StateApproving
	// StateExecuting is driving a command queue against the PTY.
	StateExecuting
)

func (s AgentState) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateJudging:
		return "judging"
	case StateApproving:
		return "approving"
	case StateExecuting:
		return "executing"
	default:
		return "idle"
	}
}
