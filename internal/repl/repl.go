package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"golang.org/x/term"

	"github.com/unixagent/unixagent/internal/audit"
	"github.com/unixagent/unixagent/internal/backend"
	"github.com/unixagent/unixagent/internal/history"
	"github.com/unixagent/unixagent/internal/journal"
	"github.com/unixagent/unixagent/internal/judge"
	"github.com/unixagent/unixagent/internal/osc"
	"github.com/unixagent/unixagent/internal/procinfo"
	"github.com/unixagent/unixagent/internal/protocol"
	"github.com/unixagent/unixagent/internal/ptysession"
	"github.com/unixagent/unixagent/internal/queue"
	"github.com/unixagent/unixagent/internal/renderer"
	"github.com/unixagent/unixagent/internal/risk"
	"github.com/unixagent/unixagent/internal/store"
)

const (
	spinnerInterval    = 80 * time.Millisecond
	childPollInterval  = 3 * time.Second
	userCaptureMaxLine = 4000
	execCaptureMaxLine = 4000
)

// deniedMessage is the fixed tool-result content bound to every tool-use
// id in a batch that the classifier denies outright.
const deniedMessage = "blocked: command denied by policy"

// Options configures one REPL run. The caller (cmd/unixagent) is
// responsible for resolving config into these plain fields so this
// package never needs to parse config.File itself.
type Options struct {
	SessionID           string
	SystemPrompt        string
	JournalBudgetTokens int

	AutoApproveReadOnly bool
	JudgeEnabled        bool
	SandboxActive       bool

	MaxNestingDepth int
	NoIntegration   bool
	LineWidth       int
	DebugOSC        bool
}

// REPL drives the Idle/Streaming/Judging/Approving/Executing state
// machine described in the spec's REPL Core section. A single goroutine
// owns all mutable state; every other goroutine only ever sends events
// on r.events, so nothing here needs a lock beyond the audit/journal
// writers' own internal ones.
type REPL struct {
	opts Options

	pty      *ptysession.Session
	oscP     *osc.Parser
	jr       *journal.Journal
	auditLog audit.Log
	q        *queue.Queue
	rnd      *renderer.Renderer
	client   *backend.Client
	judgeC   judge.Backend
	tool     backend.ToolSpec

	events chan event

	state AgentState

	conv      []protocol.Message
	convValid bool

	instruction string

	// streaming
	streamCancel  context.CancelFunc
	iteration     int
	turnStart     time.Time
	displayAcc    strings.Builder
	thinkingAcc   strings.Builder
	thinkingShown bool
	thinkingDone  bool
	pendingTools  []protocol.ToolUseRecord
	turnInTok     int
	turnOutTok    int

	// judging / approving
	batchCommands []string
	batchIDs      []string
	batchLevels   []risk.Level
	hasPrivileged bool
	yesBuf        PrivilegedYesBuffer
	judgeReason   string
	judgeCancel   context.CancelFunc

	// executing
	execCapture *history.Ring
	execOutputs []string
	execIdx     int
	execStart   time.Time

	// idle line tracking
	lineBuf        strings.Builder
	lineIsComment  bool
	pendingUserCmd string
	userCapture    *history.Ring
	userCapturing  bool

	commandsRunTotal    int
	commandsDeniedTotal int

	// session-wide totals, accumulated across every turn for the exit
	// summary entry a parent agent reads via announceChildExit.
	sessionStart            time.Time
	sessionTask              string
	sessionInTok             int
	sessionOutTok            int
	sessionCommandsRun       int
	sessionCommandsDenied    int

	knownChildren map[int]bool

	rawState *term.State
	runCtx   context.Context

	wg sync.WaitGroup
}

// New constructs a REPL ready to Run. client drives the primary
// conversational model; judgeC (which may be nil when the judge is
// disabled) drives the independent safety opinion.
func New(opts Options, pty *ptysession.Session, jr *journal.Journal, auditLog audit.Log, rnd *renderer.Renderer, client *backend.Client, judgeC judge.Backend) *REPL {
	return &REPL{
		opts:          opts,
		pty:           pty,
		oscP:          osc.NewParser(),
		jr:            jr,
		auditLog:      auditLog,
		q:             queue.New(),
		rnd:           rnd,
		client:        client,
		judgeC:        judgeC,
		tool:          shellToolSpec(),
		events:        make(chan event, 256),
		knownChildren: map[int]bool{},
	}
}

func shellToolSpec() backend.ToolSpec {
	return backend.ToolSpec{
		Name:        protocol.ShellToolName,
		Description: "Run one or more shell commands in the user's own interactive shell session.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "The shell command to run.",
				},
				"output_mode": map[string]interface{}{
					"type": "string",
					"enum": []string{"full", "final"},
				},
			},
			"required": []string{"command"},
		},
	}
}

// event is the sum type multiplexed onto the REPL's single channel.
type event interface{}

type evKey struct{ b byte }
type evPTYData struct{ data []byte }
type evPTYClosed struct{ err error }
type evStream struct{ se protocol.StreamEvent }
type evStreamDone struct{}
type evJudgeResult struct{ v judge.Verdict }
type evTick struct{}
type evChildPoll struct{}

// Run enables raw terminal mode, spawns the reader/ticker goroutines,
// and drives the state machine until the PTY closes or ctx is cancelled.
func (r *REPL) Run(ctx context.Context) error {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("repl: failed to enter raw mode: %w", err)
	}
	r.rawState = oldState
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.runCtx = runCtx

	r.wg.Add(2)
	go r.readStdin(runCtx)
	go r.readPTY(runCtx)

	spinnerTicker := time.NewTicker(spinnerInterval)
	defer spinnerTicker.Stop()
	childTicker := time.NewTicker(childPollInterval)
	defer childTicker.Stop()

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-spinnerTicker.C:
				select {
				case r.events <- evTick{}:
				case <-runCtx.Done():
					return
				}
			case <-childTicker.C:
				select {
				case r.events <- evChildPoll{}:
				case <-runCtx.Done():
					return
				}
			}
		}
	}()

	r.turnStart = time.Now()
	r.sessionStart = time.Now()

	for {
		select {
		case <-ctx.Done():
			cancel()
			r.wg.Wait()
			r.journalSummary(nil)
			return ctx.Err()
		case ev := <-r.events:
			if done := r.handle(ev); done {
				cancel()
				r.wg.Wait()
				r.journalSummary(r.shellExitCode())
				return nil
			}
		}
	}
}

// shellExitCode reaps the PTY's child shell and reports its exit code, or
// nil if it could not be determined (killed by signal, already reaped).
func (r *REPL) shellExitCode() *int {
	err := r.pty.Wait()
	if err == nil {
		code := 0
		return &code
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code >= 0 {
			return &code
		}
	}
	return nil
}

// journalSummary writes the session's closing summary entry: the last
// line of a child agent's journal is always its summary, so a parent
// agent polling for descendant exits can read it back without needing
// the child to report out-of-band.
func (r *REPL) journalSummary(exitCode *int) {
	_ = r.jr.Append(journal.Entry{
		Type:           journal.TypeSummary,
		TS:             time.Now(),
		InputTokens:    r.sessionInTok,
		OutputTokens:   r.sessionOutTok,
		CommandsRun:    r.sessionCommandsRun,
		CommandsDenied: r.sessionCommandsDenied,
		SummaryExit:    exitCode,
		ElapsedSecs:    time.Since(r.sessionStart).Seconds(),
		Task:           r.sessionTask,
	})
}

func (r *REPL) readStdin(ctx context.Context) {
	defer r.wg.Done()
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			select {
			case r.events <- evKey{b: buf[0]}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *REPL) readPTY(ctx context.Context) {
	defer r.wg.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.pty.PTY().Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case r.events <- evPTYData{data: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case r.events <- evPTYClosed{err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// handle dispatches one event; a true return means the session is over.
func (r *REPL) handle(ev event) bool {
	switch e := ev.(type) {
	case evPTYClosed:
		return true
	case evKey:
		r.handleKey(e.b)
	case evPTYData:
		r.handlePTYData(e.data)
	case evStream:
		r.handleStreamEvent(e.se)
	case evStreamDone:
		r.handleStreamDone()
	case evJudgeResult:
		r.handleJudgeResult(e.v)
	case evTick:
		r.handleTick()
	case evChildPoll:
		r.pollChildren()
	}
	return false
}

// --- keystroke handling ---

func (r *REPL) handleKey(b byte) {
	switch r.state {
	case StateIdle:
		r.handleIdleKey(b)
	case StateStreaming:
		if b == 0x03 {
			r.cancelStreaming()
		}
	case StateJudging:
		if b == 0x03 {
			r.cancelJudging()
		}
	case StateApproving:
		r.handleApprovingKey(b)
	case StateExecuting:
		if b == 0x03 {
			r.abortExecuting()
			return
		}
		_, _ = r.pty.Write([]byte{b})
	}
}

// handleIdleKey mirrors every keystroke of the current line into lineBuf
// so Enter always has the full line text available, regardless of
// whether the line turned out to be a '#' instruction (locally echoed,
// never forwarded) or an ordinary shell command (forwarded so the shell
// draws its own echo). The comment/non-comment decision is made once,
// from the very first byte of the line.
func (r *REPL) handleIdleKey(b byte) {
	interceptable := IsInterceptable(r.oscP.State() == osc.StateExecuting)

	if b == '\n' || b == '\r' {
		line := r.lineBuf.String()
		r.lineBuf.Reset()
		wasComment := r.lineIsComment
		r.lineIsComment = false

		if wasComment {
			r.rnd.ClearSpinner()
			fmt.Fprint(os.Stderr, "\r\n")
			r.startTurn(strings.TrimSpace(strings.TrimPrefix(line, "#")))
			return
		}

		// A normal shell command line: forward Enter to the shell and
		// remember the text so CommandStart/CommandDone can journal it.
		if strings.TrimSpace(line) != "" {
			r.pendingUserCmd = line
		}
		_, _ = r.pty.Write([]byte{b})
		return
	}

	if b == 0x7F || b == 0x08 {
		s := r.lineBuf.String()
		if len(s) > 0 {
			r.lineBuf.Reset()
			r.lineBuf.WriteString(s[:len(s)-1])
		}
		if r.lineIsComment {
			fmt.Fprint(os.Stderr, "\b \b")
			return
		}
		_, _ = r.pty.Write([]byte{b})
		return
	}

	if r.lineBuf.Len() == 0 && b == '#' && interceptable {
		r.lineIsComment = true
	}
	r.lineBuf.WriteByte(b)

	if r.lineIsComment {
		r.rnd.ClearSpinner()
		fmt.Fprint(os.Stderr, string(b))
		return
	}

	_, _ = r.pty.Write([]byte{b})
}

func (r *REPL) handleApprovingKey(b byte) {
	if r.hasPrivileged {
		switch r.yesBuf.Feed(b) {
		case PrivilegedApproved:
			r.completeApproval(true)
		case PrivilegedDenied:
			r.completeApproval(false)
		case PrivilegedPending:
		}
		return
	}

	switch ClassifyApprovalKey(b) {
	case ApprovalYes:
		r.completeApproval(true)
	case ApprovalNo:
		r.completeApproval(false)
	case ApprovalEdit:
		_ = clipboard.WriteAll(strings.Join(r.batchCommands, "\n"))
		fmt.Fprint(os.Stderr, "\r\ncopied batch to clipboard\r\n")
		r.completeApproval(false)
	case ApprovalNone:
	}
}

// --- PTY data handling ---

func (r *REPL) handlePTYData(data []byte) {
	for _, b := range data {
		ev, ok := r.oscP.Feed(b)

		suppress := r.state == StateJudging || r.state == StateApproving
		if !suppress {
			os.Stdout.Write([]byte{b})
		}

		if r.userCapturing {
			r.userCapture.Feed([]byte{b})
		}
		if r.state == StateExecuting && r.execCapture != nil {
			r.execCapture.Feed([]byte{b})
		}

		if ok {
			if r.opts.DebugOSC {
				fmt.Fprintf(os.Stderr, "\r\n[osc] kind=%v exit=%v state=%v\r\n", ev.Kind, ev.ExitCode, r.oscP.State())
			}
			r.handleOSCEvent(ev)
		}
	}
}

func (r *REPL) handleOSCEvent(ev osc.Event) {
	switch r.state {
	case StateIdle:
		switch ev.Kind {
		case osc.CommandStart:
			if r.pendingUserCmd != "" {
				r.userCapture = history.New(userCaptureMaxLine, false)
				r.userCapturing = true
			}
		case osc.CommandDone:
			if r.userCapturing {
				exit := ev.ExitCode
				var exitPtr *int
				if ev.HasExitCode {
					exitPtr = &exit
				}
				r.journalShellCommand(r.pendingUserCmd, exitPtr)
				r.clearUserCapture()
			}
		case osc.PromptStart:
			if r.userCapturing {
				r.journalShellCommand(r.pendingUserCmd, nil)
				r.clearUserCapture()
			}
		}
	case StateExecuting:
		if ev.Kind == osc.CommandDone {
			r.recordExecuted(ev)
		}
		outcome, cmd, code := r.q.HandleOSC(ev)
		r.handleQueueOutcome(outcome, cmd, code)
	}
}

func (r *REPL) clearUserCapture() {
	r.userCapturing = false
	r.userCapture = nil
	r.pendingUserCmd = ""
}

func (r *REPL) journalShellCommand(cmd string, exit *int) {
	output := ""
	if r.userCapture != nil {
		output = strings.Join(r.userCapture.Lines(), "\n")
	}
	_ = r.jr.Append(journal.Entry{
		Type:     journal.TypeShellCommand,
		TS:       time.Now(),
		Command:  cmd,
		ExitCode: exit,
		Output:   output,
	})
}

// --- streaming ---

func (r *REPL) startTurn(instruction string) {
	if instruction == "" {
		return
	}
	r.instruction = instruction
	r.convValid = false // a fresh instruction always forces a rebuild
	if r.sessionTask == "" {
		r.sessionTask = instruction
	}

	_ = r.jr.Append(journal.Entry{Type: journal.TypeInstruction, TS: time.Now(), Text: instruction})
	r.iteration = 0
	r.startStreaming()
}

func (r *REPL) startStreaming() {
	if !r.convValid {
		r.rebuildConversation()
	}

	r.state = StateStreaming
	r.turnStart = time.Now()
	r.displayAcc.Reset()
	r.thinkingAcc.Reset()
	r.thinkingShown = false
	r.thinkingDone = false
	r.pendingTools = nil
	r.turnInTok = 0
	r.turnOutTok = 0
	r.commandsRunTotal = 0
	r.commandsDeniedTotal = 0

	streamCtx, cancel := context.WithCancel(r.runCtx)
	r.streamCancel = cancel

	ch, err := r.client.Stream(streamCtx, r.conv, []backend.ToolSpec{r.tool})
	if err != nil {
		r.rnd.ClearSpinner()
		r.rnd.ErrorLine("backend error", err)
		r.state = StateIdle
		cancel()
		return
	}

	go func() {
		for se := range ch {
			select {
			case r.events <- evStream{se: se}:
			case <-streamCtx.Done():
				return
			}
		}
		select {
		case r.events <- evStreamDone{}:
		case <-streamCtx.Done():
		}
	}()
}

func (r *REPL) rebuildConversation() {
	path, err := store.SessionJournalPath(r.opts.SessionID)
	if err != nil {
		r.conv = nil
		r.convValid = true
		return
	}
	entries, err := journal.ReadAll(path)
	if err != nil {
		r.conv = nil
		r.convValid = true
		return
	}
	r.conv = journal.BuildConversation(entries, r.opts.JournalBudgetTokens)
	r.convValid = true
	_ = r.jr.Append(journal.Entry{Type: journal.TypeSystemPrompt, TS: time.Now(), Text: r.opts.SystemPrompt})
}

func (r *REPL) cancelStreaming() {
	if r.streamCancel != nil {
		r.streamCancel()
	}
	r.rnd.ClearSpinner()
	r.state = StateIdle
}

func (r *REPL) handleStreamEvent(se protocol.StreamEvent) {
	if r.state != StateStreaming {
		return
	}
	switch se.Kind {
	case protocol.EventText:
		r.rnd.ClearSpinner()
		r.displayAcc.WriteString(se.Text)
		r.rnd.AssistantText(se.Text)
	case protocol.EventThinking:
		r.thinkingAcc.WriteString(se.Text)
		if !r.thinkingDone {
			if !r.thinkingShown {
				r.rnd.ClearSpinner()
				if line, _, found := strings.Cut(se.Text, "\n"); found {
					r.rnd.Thinking(line + "\n")
					r.thinkingDone = true
				} else {
					r.rnd.Thinking(se.Text)
				}
				r.thinkingShown = true
			} else if strings.Contains(se.Text, "\n") {
				r.thinkingDone = true
			}
		}
	case protocol.EventToolUse:
		r.pendingTools = append(r.pendingTools, se.ToolUse)
	case protocol.EventUsage:
		r.turnInTok += se.Usage.InputTokens
		r.turnOutTok += se.Usage.OutputTokens
		r.sessionInTok += se.Usage.InputTokens
		r.sessionOutTok += se.Usage.OutputTokens
	case protocol.EventError:
		r.rnd.ClearSpinner()
		r.rnd.ErrorLine("stream error", se.Err)
	}
}

func (r *REPL) handleStreamDone() {
	if r.state != StateStreaming {
		return
	}

	full := r.displayAcc.String()
	toolUses := r.pendingTools

	if len(toolUses) == 0 {
		r.rnd.FinishAssistant(full)
		r.rnd.FooterWithCommands(time.Since(r.turnStart), r.turnInTok, r.turnOutTok, r.commandsRunTotal)

		_ = r.jr.Append(journal.Entry{Type: journal.TypeResponse, TS: time.Now(), Text: full, Thinking: r.thinkingAcc.String()})
		r.conv = append(r.conv, protocol.Message{Role: protocol.RoleAssistant, Content: full})
		r.invalidateIfOverBudget()

		r.state = StateIdle
		return
	}

	_ = r.jr.Append(journal.Entry{Type: journal.TypeResponse, TS: time.Now(), Text: full, Thinking: r.thinkingAcc.String(), ToolUses: toolUses})
	r.conv = append(r.conv, protocol.Message{Role: protocol.RoleAssistant, Content: full, ToolUses: toolUses})

	r.gateAndRoute()
}

func (r *REPL) invalidateIfOverBudget() {
	total := 0
	for _, m := range r.conv {
		total += len(m.Content) / 4
		for _, tr := range m.ToolResults {
			total += len(tr.Content) / 4
		}
	}
	if total > r.opts.JournalBudgetTokens {
		r.convValid = false
	}
}

// --- gating ---

func commandFromToolUse(tu protocol.ToolUseRecord) string {
	if tu.Command != "" {
		return tu.Command
	}
	raw, err := json.Marshal(tu.Input)
	if err != nil {
		return ""
	}
	var in protocol.ShellToolInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return ""
	}
	return in.Command
}

func (r *REPL) gateAndRoute() {
	r.batchCommands = nil
	r.batchIDs = nil
	for _, tu := range r.pendingTools {
		r.batchCommands = append(r.batchCommands, commandFromToolUse(tu))
		r.batchIDs = append(r.batchIDs, tu.ID)
	}

	r.batchLevels = make([]risk.Level, len(r.batchCommands))
	for i, cmd := range r.batchCommands {
		r.batchLevels[i] = risk.Analyze(cmd)
	}

	_ = r.auditLog.Write(audit.Event{
		Kind:       audit.KindProposed,
		Iteration:  r.iteration,
		Commands:   r.batchCommands,
		RiskLevels: r.batchLevels,
	})

	if MaxLevel(r.batchLevels) == risk.Denied {
		r.denyBatch()
		return
	}

	for _, cmd := range r.batchCommands {
		if v := risk.Validate(cmd); v.Dangerous {
			r.rnd.ClearSpinner()
			fmt.Fprintf(os.Stderr, "\r\n[warning] %s: %s\r\n", cmd, v.Reason)
		}
	}

	r.hasPrivileged = HasPrivileged(r.batchLevels)

	decision := Gate(GateInput{
		Levels:              r.batchLevels,
		SandboxActive:       r.opts.SandboxActive,
		AutoApproveReadOnly: r.opts.AutoApproveReadOnly,
		JudgeEnabled:        r.opts.JudgeEnabled,
	})

	switch decision {
	case DecisionAllDenied:
		r.denyBatch()
	case DecisionAutoApprove:
		r.rnd.ClearSpinner()
		for i, cmd := range r.batchCommands {
			r.rnd.ProposedCommand(cmd, r.batchLevels[i])
		}
		_ = r.auditLog.Write(audit.Event{Kind: audit.KindApproved, Iteration: r.iteration, Commands: r.batchCommands, Method: "auto"})
		r.startExecuting()
	case DecisionJudge:
		r.startJudging()
	case DecisionApprove:
		r.startApproving()
	}
}

func (r *REPL) denyBatch() {
	r.rnd.ClearSpinner()
	for i, cmd := range r.batchCommands {
		r.rnd.DeniedNotice(cmd, "matches a denied command pattern")
		_ = r.auditLog.Write(audit.Event{Kind: audit.KindDenied, Iteration: r.iteration, Command: cmd, RiskLevel: r.batchLevels[i], Reason: "denied"})
	}

	results := make([]protocol.ToolResultRecord, len(r.batchIDs))
	for i, id := range r.batchIDs {
		results[i] = protocol.ToolResultRecord{ToolUseID: id, Content: deniedMessage, IsError: true}
	}
	_ = r.jr.Append(journal.Entry{Type: journal.TypeBlocked, TS: time.Now(), Results: results})
	_ = r.auditLog.Write(audit.Event{Kind: audit.KindBlocked, Iteration: r.iteration, Commands: r.batchCommands})

	r.commandsDeniedTotal += len(r.batchCommands)
	r.sessionCommandsDenied += len(r.batchCommands)
	r.conv = append(r.conv, protocol.Message{Role: protocol.RoleUser, ToolResults: results})
	r.invalidateIfOverBudget()

	r.rnd.FooterWithCommands(time.Since(r.turnStart), r.turnInTok, r.turnOutTok, r.commandsRunTotal)
	r.resetBatch()
	r.state = StateIdle
}

func (r *REPL) startJudging() {
	r.state = StateJudging
	judgeCtx, cancel := context.WithCancel(r.runCtx)
	r.judgeCancel = cancel

	cwd := procinfo.CwdOfPID(r.pty.PID())
	commands := append([]string(nil), r.batchCommands...)
	instruction := r.instruction

	go func() {
		v := judge.Evaluate(judgeCtx, r.judgeC, commands, instruction, cwd)
		select {
		case r.events <- evJudgeResult{v: v}:
		case <-judgeCtx.Done():
		}
	}()
}

func (r *REPL) cancelJudging() {
	if r.judgeCancel != nil {
		r.judgeCancel()
	}
	r.rnd.ClearSpinner()
	r.resetBatch()
	r.state = StateIdle
}

func (r *REPL) handleJudgeResult(v judge.Verdict) {
	if r.state != StateJudging {
		return
	}
	r.rnd.ClearSpinner()

	if v.Err != nil {
		r.rnd.ErrorLine("[judge] could not confirm safety", v.Err)
		r.startApproving()
		return
	}

	_ = r.auditLog.Write(audit.Event{Kind: audit.KindJudgeResult, Iteration: r.iteration, Commands: r.batchCommands, Safe: v.Safe, Reasoning: v.Reasoning})
	r.judgeReason = v.Reasoning

	if v.Safe {
		for i, cmd := range r.batchCommands {
			r.rnd.ProposedCommand(cmd, r.batchLevels[i])
		}
		_ = r.auditLog.Write(audit.Event{Kind: audit.KindApproved, Iteration: r.iteration, Commands: r.batchCommands, Method: "judge"})
		r.startExecuting()
		return
	}

	r.startApproving()
}

func (r *REPL) startApproving() {
	r.rnd.ClearSpinner()
	r.state = StateApproving
	r.yesBuf = PrivilegedYesBuffer{}

	if r.hasPrivileged {
		r.rnd.PrivilegedApprovalPrompt(r.batchCommands, r.batchLevels)
		return
	}
	for i, cmd := range r.batchCommands {
		r.rnd.ApprovalPrompt(cmd, r.batchLevels[i], r.judgeReason)
	}
}

func (r *REPL) completeApproval(approved bool) {
	r.judgeReason = ""
	if !approved {
		results := make([]protocol.ToolResultRecord, len(r.batchIDs))
		for i, id := range r.batchIDs {
			results[i] = protocol.ToolResultRecord{ToolUseID: id, Content: "denied by operator", IsError: true}
		}
		for _, cmd := range r.batchCommands {
			_ = r.auditLog.Write(audit.Event{Kind: audit.KindDenied, Iteration: r.iteration, Command: cmd, Reason: "operator denied"})
		}
		_ = r.jr.Append(journal.Entry{Type: journal.TypeBlocked, TS: time.Now(), Results: results})
		r.commandsDeniedTotal += len(r.batchCommands)
	r.sessionCommandsDenied += len(r.batchCommands)
		r.conv = append(r.conv, protocol.Message{Role: protocol.RoleUser, ToolResults: results})
		r.invalidateIfOverBudget()
		r.rnd.FooterWithCommands(time.Since(r.turnStart), r.turnInTok, r.turnOutTok, r.commandsRunTotal)
		r.resetBatch()
		r.state = StateIdle
		return
	}

	_ = r.auditLog.Write(audit.Event{Kind: audit.KindApproved, Iteration: r.iteration, Commands: r.batchCommands, Method: "operator"})
	r.startExecuting()
}

func (r *REPL) resetBatch() {
	r.batchCommands = nil
	r.batchIDs = nil
	r.batchLevels = nil
	r.hasPrivileged = false
	r.judgeReason = ""
}

// --- executing ---

func (r *REPL) startExecuting() {
	r.q.Enqueue(r.batchCommands...)
	cmd, ok := r.q.PopImmediate()
	if !ok {
		r.state = StateIdle
		return
	}
	r.execOutputs = make([]string, len(r.batchCommands))
	r.execIdx = 0
	r.state = StateExecuting
	r.dispatchNext(cmd)
}

func (r *REPL) dispatchNext(cmd string) {
	crResets := r.toolOutputMode(r.execIdx) == "final"
	r.execCapture = history.New(execCaptureMaxLine, crResets)
	r.execStart = time.Now()
	_, _ = r.pty.Write([]byte(cmd + "\n"))
}

func (r *REPL) toolOutputMode(idx int) string {
	if idx < 0 || idx >= len(r.pendingTools) {
		return "full"
	}
	raw, err := json.Marshal(r.pendingTools[idx].Input)
	if err != nil {
		return "full"
	}
	var in protocol.ShellToolInput
	if err := json.Unmarshal(raw, &in); err != nil || in.OutputMode == "" {
		return "full"
	}
	return in.OutputMode
}

func (r *REPL) recordExecuted(ev osc.Event) {
	if r.execCapture != nil && r.execIdx < len(r.execOutputs) {
		r.execOutputs[r.execIdx] = strings.Join(r.execCapture.Lines(), "\n")
	}
	code := 0
	if ev.HasExitCode {
		code = ev.ExitCode
	}
	cmd := ""
	if r.execIdx < len(r.batchCommands) {
		cmd = r.batchCommands[r.execIdx]
	}
	_ = r.auditLog.Write(audit.Event{
		Kind:       audit.KindExecuted,
		Iteration:  r.iteration,
		Command:    cmd,
		ExitCode:   code,
		DurationMS: time.Since(r.execStart).Milliseconds(),
	})
	r.commandsRunTotal++
	r.sessionCommandsRun++
}

func (r *REPL) handleQueueOutcome(outcome queue.Outcome, cmd string, code int) {
	switch outcome {
	case queue.Dispatch:
		r.execIdx++
		r.dispatchNext(cmd)
	case queue.AllDone:
		r.execIdx++
		r.finishExecuting(true, 0)
	case queue.Failed:
		r.finishExecuting(false, code)
	}
}

func (r *REPL) finishExecuting(success bool, failCode int) {
	if !success {
		r.rnd.ClearSpinner()
		fmt.Fprintf(os.Stderr, "\r\ncommand failed (exit code %d), stopping\r\n", failCode)
		r.rnd.FooterWithCommands(time.Since(r.turnStart), r.turnInTok, r.turnOutTok, r.commandsRunTotal)
		r.resetBatch()
		r.execCapture = nil
		r.state = StateIdle
		return
	}

	results := make([]protocol.ToolResultRecord, len(r.batchIDs))
	for i, id := range r.batchIDs {
		content := ""
		if i < len(r.execOutputs) {
			content = ScrubInjection(r.execOutputs[i])
		}
		results[i] = protocol.ToolResultRecord{ToolUseID: id, Content: content}
	}

	_ = r.jr.Append(journal.Entry{Type: journal.TypeToolResult, TS: time.Now(), Results: results})
	r.conv = append(r.conv, protocol.Message{Role: protocol.RoleUser, ToolResults: results})
	r.invalidateIfOverBudget()

	r.resetBatch()
	r.execCapture = nil
	r.iteration++
	r.startStreaming()
}

func (r *REPL) abortExecuting() {
	_, _ = r.pty.Write([]byte{0x03})
	r.rnd.ClearSpinner()
	fmt.Fprint(os.Stderr, "\r\naborted\r\n")
	r.rnd.FooterWithCommands(time.Since(r.turnStart), r.turnInTok, r.turnOutTok, r.commandsRunTotal)
	r.resetBatch()
	r.execCapture = nil
	r.q = queue.New()
	r.state = StateIdle
}

// --- spinner / child discovery ---

func (r *REPL) handleTick() {
	switch r.state {
	case StateStreaming:
		if r.displayAcc.Len() == 0 {
			r.rnd.SpinnerTick("thinking")
		}
	case StateJudging:
		r.rnd.SpinnerTick("judging")
	}
}

func (r *REPL) pollChildren() {
	if r.state == StateJudging || r.state == StateApproving {
		return
	}
	pids := procinfo.ListDescendantAgentPIDs(os.Getpid())
	seen := map[int]bool{}
	for _, pid := range pids {
		seen[pid] = true
		if !r.knownChildren[pid] {
			r.knownChildren[pid] = true
			fmt.Fprintf(os.Stderr, "\r\n[child agent started: pid %d]\r\n", pid)
		}
	}
	for pid := range r.knownChildren {
		if !seen[pid] {
			delete(r.knownChildren, pid)
			r.announceChildExit(pid)
		}
	}
}

func (r *REPL) announceChildExit(pid int) {
	path, err := store.AgentJournalPath(pid)
	if err != nil {
		return
	}
	entries, err := journal.ReadAll(path)
	if err != nil || len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "\r\n[child agent pid %d exited]\r\n", pid)
		return
	}
	last := entries[len(entries)-1]
	if last.Type == journal.TypeSummary {
		fmt.Fprintf(os.Stderr, "\r\n[child agent pid %d exited: %s, %d cmds (%d denied)]\r\n",
			pid, last.Task, last.CommandsRun, last.CommandsDenied)
		return
	}
	fmt.Fprintf(os.Stderr, "\r\n[child agent pid %d exited]\r\n", pid)
}
