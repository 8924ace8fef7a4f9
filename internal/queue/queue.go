// Package queue sequences a multi-command batch against the PTY using
// OSC 133 readiness signals, dispatching one command at a time and
// aborting the remainder of the batch on the first non-zero exit.
package queue

import "github.com/unixagent/unixagent/internal/osc"

// Outcome is what handling one OSC event tells the caller to do next.
type Outcome int

const (
	None Outcome = iota
	Dispatch
	AllDone
	Failed
)

// Queue holds the FIFO of pending commands for the batch currently being
// executed against the PTY.
type Queue struct {
	commands      []string
	awaitingReady bool
	executing     bool
	lastExitCode  *int
}

// New returns an empty, idle queue.
func New() *Queue { return &Queue{} }

// Enqueue appends cmds and marks the queue executing if it becomes
// non-empty.
func (q *Queue) Enqueue(cmds ...string) {
	q.commands = append(q.commands, cmds...)
	if len(q.commands) > 0 {
		q.executing = true
	}
}

// PopImmediate pops the front command for the very first dispatch of a
// batch, used when the shell is already sitting at a ready prompt.
func (q *Queue) PopImmediate() (string, bool) {
	if len(q.commands) == 0 {
		return "", false
	}
	cmd := q.commands[0]
	q.commands = q.commands[1:]
	return cmd, true
}

// Executing reports whether a batch is in flight.
func (q *Queue) Executing() bool { return q.executing }

// AwaitingReady reports whether the queue is waiting for a PromptReady
// before dispatching the next command.
func (q *Queue) AwaitingReady() bool { return q.awaitingReady }

// Empty reports whether no commands remain queued.
func (q *Queue) Empty() bool { return len(q.commands) == 0 }

// LastExitCode returns the most recently observed CommandDone exit code.
func (q *Queue) LastExitCode() (int, bool) {
	if q.lastExitCode == nil {
		return 0, false
	}
	return *q.lastExitCode, true
}

// HandleOSC advances the queue state machine in response to one decoded
// OSC event and reports what the caller should do.
func (q *Queue) HandleOSC(ev osc.Event) (Outcome, string, int) {
	switch ev.Kind {
	case osc.CommandDone:
		code := 0
		if ev.HasExitCode {
			code = ev.ExitCode
		}
		q.lastExitCode = &code
		return None, "", 0

	case osc.PromptStart:
		if q.executing {
			q.awaitingReady = true
		}
		return None, "", 0

	case osc.PromptReady:
		if !q.awaitingReady {
			return None, "", 0
		}
		q.awaitingReady = false

		if q.lastExitCode != nil && *q.lastExitCode != 0 && len(q.commands) > 0 {
			code := *q.lastExitCode
			q.commands = nil
			q.executing = false
			return Failed, "", code
		}

		if len(q.commands) == 0 {
			q.executing = false
			return AllDone, "", 0
		}

		cmd := q.commands[0]
		q.commands = q.commands[1:]
		return Dispatch, cmd, 0

	default:
		return None, "", 0
	}
}
