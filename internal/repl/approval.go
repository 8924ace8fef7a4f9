package repl

// ApprovalKey classifies one keystroke read while StateApproving for a
// non-privileged batch.
type ApprovalKey int

const (
	ApprovalNone ApprovalKey = iota
	ApprovalYes
	ApprovalNo
	ApprovalEdit
)

// ClassifyApprovalKey implements the normal-batch approval keymap from
// §4.11: y/Y/CR/LF approves, n/N/q/Q/Ctrl+C denies, e/E is the (reserved)
// edit slot, everything else is ignored.
func ClassifyApprovalKey(b byte) ApprovalKey {
	switch b {
	case 'y', 'Y', '\n', '\r':
		return ApprovalYes
	case 'n', 'N', 'q', 'Q', 0x03:
		return ApprovalNo
	case 'e', 'E':
		return ApprovalEdit
	default:
		return ApprovalNone
	}
}

// PrivilegedYesBuffer accumulates keystrokes for the typed-"yes" approval
// flow required for Privileged-or-above batches. Approve fires only once
// the buffer's content, trimmed of the terminating newline, equals "yes"
// exactly; Cancel fires on Ctrl+C at any point.
type PrivilegedYesBuffer struct {
	buf []byte
}

// PrivilegedKeyOutcome is what one keystroke did to a PrivilegedYesBuffer.
type PrivilegedKeyOutcome int

const (
	PrivilegedPending PrivilegedKeyOutcome = iota
	PrivilegedApproved
	PrivilegedDenied
)

// Feed appends b to the buffer, or evaluates it on a terminating newline.
func (p *PrivilegedYesBuffer) Feed(b byte) PrivilegedKeyOutcome {
	if b == 0x03 {
		return PrivilegedDenied
	}
	if b == '\n' || b == '\r' {
		if string(p.buf) == "yes" {
			return PrivilegedApproved
		}
		return PrivilegedDenied
	}
	p.buf = append(p.buf, b)
	return PrivilegedPending
}

// IsInterceptable reports whether the REPL should intercept keystrokes to
// look for a '#'-prefixed instruction, based on the OSC-derived terminal
// lifecycle state: true at Prompt, Input, or Idle (between a command's
// D marker and the next A), false only while a command is Executing.
func IsInterceptable(executing bool) bool {
	return !executing
}
