// Package ptysession owns the live shell running inside a
// pseudo-terminal: spawning it, keeping its window size in sync with
// the controlling terminal, and injecting the OSC 133 shell-integration
// script for the detected shell so prompt/command boundaries are
// observable from outside the shell.
package ptysession

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// ShellInfo describes the shell the session will run, detected from
// $SHELL (falling back to the OS default) so the right integration
// script can be chosen.
type ShellInfo struct {
	Name string // bash, zsh, fish, sh
	Path string
}

// DetectShell resolves the shell to run from $SHELL, falling back to
// /bin/sh (or powershell on Windows, though this module only targets
// the PTY/Landlock-capable Unix platforms).
func DetectShell() ShellInfo {
	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		if runtime.GOOS == "windows" {
			shellPath = "powershell"
		} else {
			shellPath = "/bin/sh"
		}
	}

	name := strings.TrimSuffix(filepath.Base(shellPath), ".exe")
	switch {
	case strings.Contains(name, "zsh"):
		name = "zsh"
	case strings.Contains(name, "bash"):
		name = "bash"
	case strings.Contains(name, "fish"):
		name = "fish"
	default:
		name = "sh"
	}
	return ShellInfo{Name: name, Path: shellPath}
}

// Session owns one PTY-backed child shell.
type Session struct {
	cmd  *exec.Cmd
	ptmx *os.File

	resizeCh chan os.Signal

	mu     sync.Mutex
	closed bool
}

// Start spawns shell inside a new PTY and begins mirroring the
// controlling terminal's window size into it. NoIntegration skips
// writing the OSC 133 shell-integration script to the child's stdin,
// for shells or configurations where the caller wants plain passthrough.
func Start(shell ShellInfo, noIntegration bool) (*Session, error) {
	cmd := exec.Command(shell.Path)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("ptysession: failed to start pty: %w", err)
	}

	s := &Session{cmd: cmd, ptmx: ptmx, resizeCh: make(chan os.Signal, 1)}

	signal.Notify(s.resizeCh, syscall.SIGWINCH)
	go s.watchResize()
	s.resizeCh <- syscall.SIGWINCH

	if !noIntegration {
		if err := s.injectIntegration(shell); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// injectIntegration stages the shell-integration script to a temp file and
// injects a single sourcing command through the PTY, rather than writing
// the script body directly — a multi-KB literal write risks tripping the
// line editor's paste handling on some shells. The script self-removes its
// staging file and clears the screen as its last acts, so the injection
// leaves no visible or on-disk trace once it has run.
func (s *Session) injectIntegration(shell ShellInfo) error {
	script, ok := IntegrationScripts[shell.Name]
	if !ok {
		return nil
	}

	f, err := os.CreateTemp("", "unixagent-integration-*.sh")
	if err != nil {
		return fmt.Errorf("ptysession: failed to stage integration script: %w", err)
	}
	path := f.Name()
	body := script + "\nclear\nrm -f " + shellQuote(path) + "\n"
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("ptysession: failed to write integration script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("ptysession: failed to write integration script: %w", err)
	}

	sourceCmd := "source " + shellQuote(path) + "\n"
	if _, err := io.WriteString(s.ptmx, sourceCmd); err != nil {
		os.Remove(path)
		return fmt.Errorf("ptysession: failed to inject integration script: %w", err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *Session) watchResize() {
	for range s.resizeCh {
		if err := pty.InheritSize(os.Stdin, s.ptmx); err != nil {
			fmt.Fprintf(os.Stderr, "ptysession: resize failed: %v\n", err)
		}
	}
}

// PTY returns the master side of the pseudo-terminal for I/O.
func (s *Session) PTY() *os.File { return s.ptmx }

// Write sends bytes to the child shell's stdin (the PTY master).
func (s *Session) Write(p []byte) (int, error) { return s.ptmx.Write(p) }

// Wait blocks until the child shell exits.
func (s *Session) Wait() error { return s.cmd.Wait() }

// PID returns the child shell process's PID.
func (s *Session) PID() int { return s.cmd.Process.Pid }

// Close stops resize watching and closes the PTY master. Safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	signal.Stop(s.resizeCh)
	close(s.resizeCh)
	return s.ptmx.Close()
}
