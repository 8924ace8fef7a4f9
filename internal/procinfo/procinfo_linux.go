//go:build linux

package procinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func processInfo(pid int) (Info, bool) {
	ppid, ok := ppidOf(pid)
	if !ok {
		return Info{}, false
	}
	exe, ok := exeOf(pid)
	if !ok {
		return Info{}, false
	}
	return Info{PPID: ppid, Exe: exe}, true
}

func cwdOf(pid int) string {
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", pid))
	if err != nil {
		return ""
	}
	return link
}

func exeOf(pid int) (string, bool) {
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(link); err == nil {
		return resolved, true
	}
	return link, true
}

// ppidOf parses /proc/<pid>/stat. The comm field (2nd, in parens) can
// itself contain spaces and parens, so the split point is the last ')'
// in the line rather than a fixed field index.
func ppidOf(pid int) (int, bool) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, false
	}
	stat := string(data)
	close := strings.LastIndexByte(stat, ')')
	if close == -1 || close+2 > len(stat) {
		return 0, false
	}
	fields := strings.Fields(stat[close+2:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

func listAllPIDs() []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	var pids []int
	for _, e := range entries {
		if pid, err := strconv.Atoi(e.Name()); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids
}
