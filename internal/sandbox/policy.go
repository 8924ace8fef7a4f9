// Package sandbox builds an OS-policy description from configured path
// lists and applies it irreversibly in the child process that executes a
// command, never in the parent REPL.
package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Policy describes the filesystem access a sandboxed child is permitted.
// Placeholders $CWD and $HOME/... are resolved at construction time, and
// each resolved path's canonical (symlink-followed) form is additionally
// recorded so aliases like /tmp -> /private/tmp both match.
type Policy struct {
	Writable []string `json:"writable"`
	Readable []string `json:"readable"`
	Denied   []string `json:"denied"`
}

// FromConfig expands placeholders and resolves + canonicalizes every path
// in the three lists.
func FromConfig(writable, readable, denied []string) (Policy, error) {
	w, err := resolveAll(writable)
	if err != nil {
		return Policy{}, err
	}
	r, err := resolveAll(readable)
	if err != nil {
		return Policy{}, err
	}
	d, err := resolveAll(denied)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Writable: w, Readable: r, Denied: d}, nil
}

func resolveAll(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()

	for _, raw := range paths {
		expanded := expandPlaceholders(raw, cwd, home)
		add(expanded)
		if canon, err := filepath.EvalSymlinks(expanded); err == nil && canon != expanded {
			add(canon)
		}
	}
	return out, nil
}

func expandPlaceholders(p, cwd, home string) string {
	p = strings.ReplaceAll(p, "$CWD", cwd)
	if strings.HasPrefix(p, "$HOME") {
		p = home + strings.TrimPrefix(p, "$HOME")
	}
	return p
}

// EnvVar is the environment variable used to pass a policy into a
// sandboxed child via the exec trampoline.
const EnvVar = "__UA_SANDBOX_POLICY"

// Encode serializes the policy for EnvVar.
func (p Policy) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a policy previously produced by Encode.
func Decode(s string) (Policy, error) {
	var p Policy
	err := json.Unmarshal([]byte(s), &p)
	return p, err
}

// String renders the policy as indented JSON for diagnostics.
func (p Policy) String() string {
	b, _ := json.MarshalIndent(p, "", "  ")
	return string(b)
}
