// Package repl implements the REPL core: the state machine that sits
// between the PTY session and the backend, deciding when a batch of
// proposed commands may run unattended, when it needs a judge opinion,
// and when it needs the operator's approval.
package repl

import "github.com/unixagent/unixagent/internal/risk"

// Decision is the outcome of classify_and_gate for one proposed batch.
type Decision int

const (
	// DecisionAllDenied means at least one command classified Denied;
	// the whole batch is rejected without running anything.
	DecisionAllDenied Decision = iota
	// DecisionAutoApprove means the batch may run without a judge call
	// or operator prompt.
	DecisionAutoApprove
	// DecisionJudge means the judge LLM must weigh in before the batch
	// can proceed.
	DecisionJudge
	// DecisionApprove means the batch goes straight to the operator
	// approval prompt.
	DecisionApprove
)

// GateInput is the classified state of one proposed batch, plus the
// configuration knobs that decide how it is gated.
type GateInput struct {
	Levels               []risk.Level
	SandboxActive        bool
	AutoApproveReadOnly  bool
	JudgeEnabled         bool
}

// Gate implements classify_and_gate: given the per-command risk levels
// of a batch and the active policy, decide whether it auto-approves,
// needs a judge opinion, needs operator approval, or is denied outright.
func Gate(in GateInput) Decision {
	max := risk.ReadOnly
	allReadOnly := true
	for _, l := range in.Levels {
		max = risk.Max(max, l)
		if l != risk.ReadOnly {
			allReadOnly = false
		}
	}

	if max == risk.Denied {
		return DecisionAllDenied
	}

	if in.SandboxActive && belowOrEqual(max, risk.Write) {
		return DecisionAutoApprove
	}
	if allReadOnly && in.AutoApproveReadOnly {
		return DecisionAutoApprove
	}
	if in.JudgeEnabled {
		return DecisionJudge
	}
	return DecisionApprove
}

func belowOrEqual(l, bound risk.Level) bool {
	return l <= bound
}

// HasPrivileged reports whether any level in the batch is Privileged or
// above — privileged batches require the stricter "type yes" approval
// flow instead of a single keystroke.
func HasPrivileged(levels []risk.Level) bool {
	for _, l := range levels {
		if l >= risk.Privileged {
			return true
		}
	}
	return false
}

// MaxLevel returns the highest risk level across a batch, defaulting to
// ReadOnly for an empty batch.
func MaxLevel(levels []risk.Level) risk.Level {
	max := risk.ReadOnly
	for _, l := range levels {
		max = risk.Max(max, l)
	}
	return max
}
