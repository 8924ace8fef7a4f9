// Package procinfo walks the real process tree to answer two
// questions the agent cannot trust an environment variable to answer
// honestly: how deeply nested is this agent inside other agent
// invocations, and what is the live working directory of the shell
// child running under the PTY.
package procinfo

import (
	"os"
	"path/filepath"
)

// Info is one process's parent PID and resolved executable path, as
// returned by the platform-specific lookup.
type Info struct {
	PPID int
	Exe  string
}

// infoFunc looks up one process's Info, or ok=false if the process
// cannot be inspected (already exited, permission denied, or the PID
// simply does not exist).
type infoFunc func(pid int) (Info, bool)

// countMatchingAncestors is the OS-independent core: walk my_pid's
// parent chain and count how many ancestors share my_exe's resolved
// path. Separated from CountAncestorDepth so tests can drive it with a
// fake process table instead of the real kernel.
func countMatchingAncestors(myExe string, myPID int, info infoFunc) int {
	depth := 0
	seen := map[int]bool{myPID: true}

	self, ok := info(myPID)
	if !ok {
		return 0
	}
	current := self.PPID

	for current > 1 && !seen[current] {
		seen[current] = true
		next, ok := info(current)
		if !ok {
			break
		}
		if next.Exe == myExe {
			depth++
		}
		current = next.PPID
	}
	return depth
}

// CountAncestorDepth counts how many ancestor processes are running
// the same binary as the current process. Returns 0 (never an error)
// if the executable or process tree cannot be determined — the safe
// default is "no nesting detected, allow execution."
func CountAncestorDepth() int {
	myExe, ok := currentExeResolved()
	if !ok {
		return 0
	}
	return countMatchingAncestors(myExe, os.Getpid(), processInfo)
}

// CheckDepth reports the current ancestor depth and whether it is at
// or beyond max.
func CheckDepth(max int) (depth int, exceeded bool) {
	depth = CountAncestorDepth()
	return depth, depth >= max
}

func currentExeResolved() (string, bool) {
	exe, err := os.Executable()
	if err != nil {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return exe, true
	}
	return resolved, true
}

// CwdOfPID returns the current working directory of pid, or "" if it
// cannot be determined on this platform or the process has exited.
func CwdOfPID(pid int) string {
	return cwdOf(pid)
}

// collectDescendantAgents is the OS-independent core for descendant
// discovery: scan allPIDs for processes running myExe whose parent
// chain passes through ancestorPID.
func collectDescendantAgents(myExe string, ancestorPID int, allPIDs []int, info infoFunc) []int {
	var result []int
	for _, pid := range allPIDs {
		if pid == ancestorPID {
			continue
		}
		self, ok := info(pid)
		if !ok || self.Exe != myExe {
			continue
		}

		current := self.PPID
		seen := map[int]bool{pid: true}
		for current > 1 && !seen[current] {
			if current == ancestorPID {
				result = append(result, pid)
				break
			}
			seen[current] = true
			next, ok := info(current)
			if !ok {
				break
			}
			current = next.PPID
		}
	}
	return result
}

// ListDescendantAgentPIDs lists PIDs of processes running the same
// binary as the current process, nested somewhere under ancestorPID.
// Returns nil if the executable or process list cannot be determined.
func ListDescendantAgentPIDs(ancestorPID int) []int {
	myExe, ok := currentExeResolved()
	if !ok {
		return nil
	}
	return collectDescendantAgents(myExe, ancestorPID, listAllPIDs(), processInfo)
}

// CountDescendantAgents is the length-only form of
// ListDescendantAgentPIDs, for callers that only need the count.
func CountDescendantAgents(ancestorPID int) int {
	return len(ListDescendantAgentPIDs(ancestorPID))
}
