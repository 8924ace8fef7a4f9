// Command unixagent wraps the operator's own interactive shell in a PTY,
// watches it for OSC 133 prompt/command boundaries, and lets an LLM
// propose shell commands that are classified, optionally judged, and
// gated behind operator approval before they ever reach the shell.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/unixagent/unixagent/internal/audit"
	"github.com/unixagent/unixagent/internal/backend"
	"github.com/unixagent/unixagent/internal/config"
	"github.com/unixagent/unixagent/internal/journal"
	"github.com/unixagent/unixagent/internal/judge"
	"github.com/unixagent/unixagent/internal/procinfo"
	"github.com/unixagent/unixagent/internal/ptysession"
	"github.com/unixagent/unixagent/internal/renderer"
	"github.com/unixagent/unixagent/internal/repl"
	"github.com/unixagent/unixagent/internal/sandbox"
	"github.com/unixagent/unixagent/internal/search"
	"github.com/unixagent/unixagent/internal/store"
)

// version is set by the release build via -ldflags; "dev" otherwise.
var version = "dev"

const defaultMaxNestingDepth = 8

func main() {
	// The sandbox trampoline is intercepted before cobra ever sees argv:
	// its own argv is the arbitrary command being sandboxed, not
	// something cobra's flag parser should touch.
	if len(os.Args) >= 2 && os.Args[1] == "--sandbox-exec" {
		sandbox.ExecSandboxed(os.Args[2:])
		return
	}

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debugOSC bool
	var noIntegration bool

	rootCmd := &cobra.Command{
		Use:     "unixagent",
		Short:   "Wrap your shell with an LLM that proposes and gates commands",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(debugOSC, noIntegration)
		},
	}
	rootCmd.Flags().BoolVar(&debugOSC, "debug-osc", false, "print decoded OSC 133 events to stderr")
	rootCmd.Flags().BoolVar(&noIntegration, "no-integration", false, "skip injecting the OSC 133 shell-integration script")

	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newIntegrationCmd())
	return rootCmd
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search across session journals",
		Long:  "Search past sessions' journals. Use 'user:term' or 'ai:term' to filter by role.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results to return")
	return cmd
}

func runSearch(query string, limit int) error {
	dir, err := store.Dir()
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	idx, err := search.Open(filepath.Join(dir, "search.db"))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer idx.Close()

	if err := reindexSessions(idx, dir); err != nil {
		fmt.Fprintf(os.Stderr, "search: warning: reindex incomplete: %v\n", err)
	}

	results, err := idx.Search(query, limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No matches found.")
		return nil
	}
	for _, r := range results {
		fmt.Printf("[%s] (%s) %s: %s\n", r.SessionID, r.Type, r.Role, r.Content)
	}
	return nil
}

// reindexSessions walks the sessions directory and (re-)indexes every
// journal found there. The sqlite index is a derived cache, never the
// source of truth, so rebuilding it on each search keeps it honest
// without needing a separate watcher process.
func reindexSessions(idx *search.Index, dataDir string) error {
	sdir := filepath.Join(dataDir, "sessions")
	entries, err := os.ReadDir(sdir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		sessionID := name[:len(name)-len(filepath.Ext(name))]
		if err := idx.IndexSession(sessionID, filepath.Join(sdir, name)); err != nil {
			return err
		}
	}
	return nil
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system capabilities and dependencies",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("unixagent doctor")
	fmt.Println("================")

	if search.CheckFTS5() {
		fmt.Println("[ok]   SQLite FTS5    : enabled (search available)")
	} else {
		fmt.Println("[warn] SQLite FTS5    : disabled, search falls back to a LIKE scan")
	}

	cfgDir, err := config.Dir()
	if err == nil {
		cfgPath := filepath.Join(cfgDir, "config.yaml")
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Printf("[ok]   configuration  : found (%s)\n", cfgPath)
		} else {
			fmt.Printf("[warn] configuration  : missing (%s)\n", cfgPath)
		}
	}

	if os.Getenv("OPENAI_API_KEY") != "" {
		fmt.Println("[ok]   OPENAI_API_KEY : set")
	} else {
		fmt.Println("[warn] OPENAI_API_KEY : not set (check env or config)")
	}

	if sandbox.Available() {
		fmt.Println("[ok]   sandbox backend : available on this platform")
	} else {
		fmt.Println("[warn] sandbox backend : not available on this platform")
	}

	depth := procinfo.CountAncestorDepth()
	fmt.Printf("[ok]   agent nesting   : depth %d (max %d)\n", depth, defaultMaxNestingDepth)
}

func newIntegrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integration <shell>",
		Short: "Print the shell integration script (bash, zsh, fish)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := ptysession.IntegrationScript(args[0])
			if err != nil {
				return err
			}
			fmt.Print(script)
			return nil
		},
	}
}

func runAgent(debugOSC, noIntegration bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unixagent: %w", err)
	}

	modelCfg, err := config.ResolveModel(cfg, cfg.Default)
	if err != nil {
		return fmt.Errorf("unixagent: resolving model %q: %w", cfg.Default, err)
	}
	client := backend.New(modelConfigToBackend(modelCfg))

	var judgeEnabled bool
	var judgeC judge.Backend
	if cfg.Judge != nil && cfg.Judge.Enabled != nil && *cfg.Judge.Enabled {
		judgeEnabled = true
		judgeModelName := cfg.Default
		if cfg.Judge.Model != nil && *cfg.Judge.Model != "" {
			judgeModelName = *cfg.Judge.Model
		}
		judgeModelCfg, err := config.ResolveModel(cfg, judgeModelName)
		if err != nil {
			return fmt.Errorf("unixagent: resolving judge model %q: %w", judgeModelName, err)
		}
		judgeC = backend.New(modelConfigToBackend(judgeModelCfg))
	}

	sessionID := generateSessionID()

	journalPath, err := store.SessionJournalPath(sessionID)
	if err != nil {
		return fmt.Errorf("unixagent: %w", err)
	}
	os.Setenv("UNIXAGENT_JOURNAL", journalPath)

	jr, err := journal.New(journalPath)
	if err != nil {
		return fmt.Errorf("unixagent: opening journal: %w", err)
	}
	defer jr.Close()

	var auditLog audit.Log
	if auditPath, err := store.AuditPath(); err == nil {
		if al, err := audit.New(auditPath, sessionID); err == nil {
			auditLog = al
		}
	}
	if auditLog == nil {
		fmt.Fprintln(os.Stderr, "unixagent: warning: failed to open audit log, continuing without one")
		auditLog = audit.NewNoop()
	}

	maxNestingDepth := defaultMaxNestingDepth
	if cfg.MaxNestingDepth != nil {
		maxNestingDepth = *cfg.MaxNestingDepth
	}
	if depth, exceeded := procinfo.CheckDepth(maxNestingDepth); exceeded {
		return fmt.Errorf("unixagent: refusing to start, already nested %d levels deep (max %d)", depth, maxNestingDepth)
	}

	shell := ptysession.DetectShell()
	ptySess, err := ptysession.Start(shell, noIntegration)
	if err != nil {
		return fmt.Errorf("unixagent: starting shell: %w", err)
	}
	defer ptySess.Close()

	lineWidth := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		lineWidth = w
	}
	rnd := renderer.New(os.Stderr, lineWidth)

	sandboxActive := cfg.Sandbox != nil && cfg.Sandbox.Enabled != nil && *cfg.Sandbox.Enabled

	// gate.go's Gate() takes a single auto-approve-read-only bool, not
	// AutoApproveBelow's richer risk-level threshold: the approval.yolo
	// flag is the one knob that maps onto that boolean cleanly (run
	// all-read-only batches unattended), so it drives AutoApproveReadOnly
	// here rather than threading a threshold into the REPL core.
	autoApproveReadOnly := cfg.Approval != nil && cfg.Approval.Yolo != nil && *cfg.Approval.Yolo

	opts := repl.Options{
		SessionID:           sessionID,
		SystemPrompt:        defaultSystemPrompt,
		JournalBudgetTokens: journalBudgetTokens(cfg),
		AutoApproveReadOnly: autoApproveReadOnly,
		JudgeEnabled:        judgeEnabled,
		SandboxActive:       sandboxActive,
		MaxNestingDepth:     maxNestingDepth,
		NoIntegration:       noIntegration,
		LineWidth:           lineWidth,
		DebugOSC:            debugOSC,
	}

	r := repl.New(opts, ptySess, jr, auditLog, rnd, client, judgeC)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return r.Run(ctx)
}

const defaultSystemPrompt = `You are an autonomous assistant operating inside the user's own
interactive shell session, running alongside (not instead of) their
terminal. You have one tool, "shell", which runs one or more commands in
that session. Prefer read-only commands to understand state before
proposing changes. Commands you propose may be classified by risk,
reviewed by an independent judge, or require the operator's explicit
approval before they run — that review happens outside your control, so
never try to work around it by obfuscating a command's intent.`

func journalBudgetTokens(cfg *config.File) int {
	if cfg.JournalBudget != nil && *cfg.JournalBudget > 0 {
		return *cfg.JournalBudget
	}
	return 32000
}

func modelConfigToBackend(mc config.ModelConfig) backend.Config {
	var c backend.Config
	if mc.Model != nil {
		c.Model = *mc.Model
	}
	c.APIBase = "https://api.openai.com/v1"
	if mc.APIBase != nil {
		c.APIBase = *mc.APIBase
	}
	c.APIKey = os.Getenv("OPENAI_API_KEY")
	if mc.APIKey != nil {
		c.APIKey = *mc.APIKey
	}
	if mc.Temperature != nil {
		c.Temperature = mc.Temperature
	}
	if mc.Seed != nil {
		c.Seed = *mc.Seed
	}
	if mc.MaxTokens != nil {
		c.MaxTokens = *mc.MaxTokens
	}
	c.Extra = mc.ExtraBody
	return c
}

// generateSessionID mirrors the teacher's generateUUID: 16 random bytes,
// URL-safe base64, falling back to a millisecond timestamp if the CSPRNG
// is unavailable.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixMilli())
	}
	return base64.URLEncoding.EncodeToString(b)
}
