package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Apply applies policy to the current process. It is only ever called
// from the child process that is about to exec the command being run —
// the parent REPL must remain unsandboxed so it keeps keyboard/PTY
// access.
func Apply(p Policy) error {
	return apply(p)
}

// ExecSandboxed is the trampoline entry point invoked as
// `unixagent --sandbox-exec <argv...>`: it reads the policy from the
// __UA_SANDBOX_POLICY environment variable, applies it, prints the single
// confirmation line the parent uses to distinguish "sandbox active" from
// "command not found", then execs the requested program. It never
// returns on success; any failure here must exit 126 so the parent can
// tell a refused sandbox apart from a 127 "command not found".
func ExecSandboxed(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "[ua:sandbox] no command given")
		os.Exit(126)
	}

	raw := os.Getenv(EnvVar)
	if raw == "" {
		fmt.Fprintln(os.Stderr, "[ua:sandbox] missing policy env var")
		os.Exit(126)
	}

	policy, err := Decode(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ua:sandbox] invalid policy: %v\n", err)
		os.Exit(126)
	}

	if err := Apply(policy); err != nil {
		fmt.Fprintf(os.Stderr, "[ua:sandbox] apply failed: %v\n", err)
		os.Exit(126)
	}

	fmt.Fprintln(os.Stderr, "[ua:sandbox] active")

	bin, err := exec.LookPath(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ua:sandbox] command not found: %s\n", args[0])
		os.Exit(127)
	}

	env := os.Environ()
	if err := syscall.Exec(bin, args, env); err != nil {
		fmt.Fprintf(os.Stderr, "[ua:sandbox] exec failed: %v\n", err)
		os.Exit(126)
	}
}
