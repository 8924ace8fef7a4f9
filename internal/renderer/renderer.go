// Package renderer formats agent output to the operator's terminal. It
// is a plain io.Writer-backed formatter, not a full-terminal-owning TUI:
// the PTY session itself owns raw mode, so the renderer only ever
// writes lines and ephemeral status text to stderr.
package renderer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	markdown "github.com/vlanse/go-term-markdown"

	"github.com/unixagent/unixagent/internal/protocol"
	"github.com/unixagent/unixagent/internal/risk"
)

// Renderer writes formatted agent output and ephemeral status lines to
// an underlying writer (normally os.Stderr, so it never collides with
// the PTY's own stdout passthrough).
type Renderer struct {
	w            io.Writer
	noColor      bool
	lineWidth    int
	spinnerFrame int
	spinnerLast  time.Time

	assistantStyle lipgloss.Style
	riskStyle      map[risk.Level]lipgloss.Style
	dimStyle       lipgloss.Style
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// New builds a Renderer writing to w. NO_COLOR (checked once at
// construction, matching the convention every terminal tool in this
// stack honors) disables all lipgloss styling; output degrades to
// plain text.
func New(w io.Writer, lineWidth int) *Renderer {
	noColor := os.Getenv("NO_COLOR") != ""
	r := &Renderer{w: w, noColor: noColor, lineWidth: lineWidth}

	if !noColor {
		r.assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("171"))
		r.dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		r.riskStyle = map[risk.Level]lipgloss.Style{
			risk.ReadOnly:    lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			risk.BuildTest:   lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
			risk.Write:       lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			risk.Destructive: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			risk.Network:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
			risk.Privileged:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			risk.Denied:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		}
	}
	return r
}

// crlf rewrites bare newlines to CRLF: the PTY session leaves the
// terminal in raw mode for the duration of the agent loop, so without
// this every line would stair-step down the left margin.
func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func (r *Renderer) write(s string) {
	fmt.Fprint(r.w, crlf(s))
}

// AssistantText streams one chunk of assistant text. Markdown rendering
// is deferred to FinishAssistant, which re-renders the full accumulated
// message once streaming completes — re-rendering partial markdown on
// every delta produces visible flicker and broken tables mid-stream.
func (r *Renderer) AssistantText(chunk string) {
	r.write(chunk)
}

// FinishAssistant re-renders the complete assistant message as markdown
// and appends a blank line separator.
func (r *Renderer) FinishAssistant(full string) {
	rendered := string(markdown.Render(strings.TrimRight(full, " \t\r\n"), r.lineWidth, 2))
	r.write("\r" + strings.Repeat(" ", r.lineWidth) + "\r")
	r.write(rendered)
	r.write("\n")
}

// Thinking renders a reasoning-trace chunk dimmed, if color is enabled.
func (r *Renderer) Thinking(chunk string) {
	if r.noColor {
		r.write(chunk)
		return
	}
	r.write(r.dimStyle.Render(chunk))
}

// SpinnerTick advances and redraws the ephemeral spinner line labeled
// with label (e.g. "thinking", "judging"). Ephemeral means: callers
// must overwrite or clear this line before writing anything else, since
// it is never followed by a newline.
func (r *Renderer) SpinnerTick(label string) {
	now := time.Now()
	if now.Sub(r.spinnerLast) >= 100*time.Millisecond {
		r.spinnerFrame = (r.spinnerFrame + 1) % len(spinnerFrames)
		r.spinnerLast = now
	}
	frame := spinnerFrames[r.spinnerFrame]
	line := fmt.Sprintf("\r%s %s...", frame, label)
	if !r.noColor {
		line = fmt.Sprintf("\r%s %s...", r.assistantStyle.Render(frame), label)
	}
	r.write(line)
}

// ClearSpinner erases the ephemeral spinner line.
func (r *Renderer) ClearSpinner() {
	r.write("\r" + strings.Repeat(" ", 40) + "\r")
}

// ProposedCommand renders a single proposed shell command colored by
// its classified risk level, for the conversational log.
func (r *Renderer) ProposedCommand(cmd string, level risk.Level) {
	label := fmt.Sprintf("[%s] %s", level.String(), cmd)
	if r.noColor {
		r.write(label + "\n")
		return
	}
	style, ok := r.riskStyle[level]
	if !ok {
		r.write(label + "\n")
		return
	}
	r.write(style.Render(label) + "\n")
}

// ApprovalPrompt renders the bounded approval UI for a single command.
// judgeReasoning is empty when no judge ran (classifier-only gate); when
// non-empty it is shown alongside the classifier's risk level.
func (r *Renderer) ApprovalPrompt(cmd string, level risk.Level, judgeReasoning string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n┌─ approval required ─────────────────────\n")
	fmt.Fprintf(&b, "│ command: %s\n", cmd)
	fmt.Fprintf(&b, "│ risk:    %s\n", level.String())
	if judgeReasoning != "" {
		fmt.Fprintf(&b, "│ judge:   %s\n", judgeReasoning)
	}
	fmt.Fprintf(&b, "│ [y] run  [n] skip  [e] edit\n")
	fmt.Fprintf(&b, "└──────────────────────────────────────────\n")
	r.write(b.String())
}

// PrivilegedApprovalPrompt renders the stricter typed-"yes" approval UI
// shown when a batch contains a Privileged-or-above command — a single
// keystroke is deliberately not enough to run sudo.
func (r *Renderer) PrivilegedApprovalPrompt(cmds []string, levels []risk.Level) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n┌─ PRIVILEGED approval required ──────────\n")
	for i, cmd := range cmds {
		level := risk.ReadOnly
		if i < len(levels) {
			level = levels[i]
		}
		fmt.Fprintf(&b, "│ [%s] %s\n", level.String(), cmd)
	}
	fmt.Fprintf(&b, "│ Type 'yes' and press Enter to approve, anything else cancels.\n")
	r.write(b.String())
}

// DeniedNotice renders the fixed-reason notice for a classifier-denied
// command that never reaches the approval prompt.
func (r *Renderer) DeniedNotice(cmd, reason string) {
	label := fmt.Sprintf("\n[denied] %s\n  reason: %s\n", cmd, reason)
	if r.noColor {
		r.write(label)
		return
	}
	r.write(r.riskStyle[risk.Denied].Render(label))
}

// ErrorLine renders a failure surfaced from the backend, judge, or
// sandbox. When err carries a *protocol.Error it is prefixed with the
// originating kind (transport, protocol, sandbox, ...) so the operator
// can tell a network hiccup from a malformed response at a glance.
func (r *Renderer) ErrorLine(prefix string, err error) {
	var pe *protocol.Error
	label := prefix
	if errors.As(err, &pe) {
		label = fmt.Sprintf("%s (%s)", prefix, pe.Kind)
	}
	line := fmt.Sprintf("\n%s: %v\n", label, err)
	if r.noColor {
		r.write(line)
		return
	}
	r.write(r.riskStyle[risk.Destructive].Render(line))
}

// Footer renders the end-of-turn status line: token usage (in/out),
// commands run, and elapsed seconds, thousands-scaled past 1000 tokens.
func (r *Renderer) Footer(elapsed time.Duration, inputTokens, outputTokens int) {
	r.FooterWithCommands(elapsed, inputTokens, outputTokens, 0)
}

// FooterWithCommands is Footer plus the number of commands the turn ran.
func (r *Renderer) FooterWithCommands(elapsed time.Duration, inputTokens, outputTokens, cmds int) {
	line := fmt.Sprintf("\n%s↑ %s↓  %d cmds  %.1fs\n",
		scaleCount(inputTokens),
		scaleCount(outputTokens),
		cmds,
		elapsed.Seconds())
	if r.noColor {
		r.write(line)
		return
	}
	r.write(r.dimStyle.Render(line))
}

func scaleCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%.1fk", float64(n)/1000)
}
