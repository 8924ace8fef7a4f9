package procinfo

import "testing"

func fakeInfo(table map[int]Info) infoFunc {
	return func(pid int) (Info, bool) {
		v, ok := table[pid]
		return v, ok
	}
}

func TestCountMatchingAncestorsDirectParent(t *testing.T) {
	table := map[int]Info{
		102: {PPID: 101, Exe: "/usr/bin/unixagent"},
		101: {PPID: 100, Exe: "/bin/sh"},
		100: {PPID: 1, Exe: "/usr/bin/unixagent"},
	}
	depth := countMatchingAncestors("/usr/bin/unixagent", 102, fakeInfo(table))
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}
}

func TestCountMatchingAncestorsZeroWhenNoneMatch(t *testing.T) {
	table := map[int]Info{
		100: {PPID: 1, Exe: "/usr/bin/unixagent"},
	}
	depth := countMatchingAncestors("/usr/bin/unixagent", 100, fakeInfo(table))
	if depth != 0 {
		t.Fatalf("expected depth 0, got %d", depth)
	}
}

func TestCountMatchingAncestorsNested(t *testing.T) {
	table := map[int]Info{
		104: {PPID: 103, Exe: "/usr/bin/unixagent"},
		103: {PPID: 102, Exe: "/bin/sh"},
		102: {PPID: 101, Exe: "/usr/bin/unixagent"},
		101: {PPID: 100, Exe: "/bin/sh"},
		100: {PPID: 1, Exe: "/usr/bin/unixagent"},
	}
	depth := countMatchingAncestors("/usr/bin/unixagent", 104, fakeInfo(table))
	if depth != 2 {
		t.Fatalf("expected depth 2, got %d", depth)
	}
}

func TestCountMatchingAncestorsMissingProcess(t *testing.T) {
	table := map[int]Info{
		100: {PPID: 999, Exe: "/usr/bin/unixagent"},
	}
	depth := countMatchingAncestors("/usr/bin/unixagent", 100, fakeInfo(table))
	if depth != 0 {
		t.Fatalf("expected depth 0, got %d", depth)
	}
}

func TestCollectDescendantAgentsDirectChild(t *testing.T) {
	ua := "/usr/bin/unixagent"
	table := map[int]Info{
		100: {PPID: 1, Exe: ua},
		101: {PPID: 100, Exe: "/bin/sh"},
		102: {PPID: 101, Exe: ua},
	}
	pids := collectDescendantAgents(ua, 100, []int{100, 101, 102}, fakeInfo(table))
	if len(pids) != 1 || pids[0] != 102 {
		t.Fatalf("expected [102], got %v", pids)
	}
}

func TestCollectDescendantAgentsNested(t *testing.T) {
	ua := "/usr/bin/unixagent"
	table := map[int]Info{
		100: {PPID: 1, Exe: ua},
		101: {PPID: 100, Exe: "/bin/sh"},
		102: {PPID: 101, Exe: ua},
		103: {PPID: 102, Exe: "/bin/sh"},
		104: {PPID: 103, Exe: ua},
	}
	pids := collectDescendantAgents(ua, 100, []int{100, 101, 102, 103, 104}, fakeInfo(table))
	if len(pids) != 2 {
		t.Fatalf("expected 2 descendants, got %v", pids)
	}
}

func TestCollectDescendantAgentsUnrelated(t *testing.T) {
	ua := "/usr/bin/unixagent"
	table := map[int]Info{
		100: {PPID: 1, Exe: ua},
		200: {PPID: 1, Exe: ua},
	}
	pids := collectDescendantAgents(ua, 100, []int{100, 200}, fakeInfo(table))
	if len(pids) != 0 {
		t.Fatalf("expected no descendants, got %v", pids)
	}
}

func TestCollectDescendantAgentsAncestorNeverCounted(t *testing.T) {
	ua := "/usr/bin/unixagent"
	table := map[int]Info{100: {PPID: 1, Exe: ua}}
	pids := collectDescendantAgents(ua, 100, []int{100}, fakeInfo(table))
	if len(pids) != 0 {
		t.Fatalf("expected ancestor excluded, got %v", pids)
	}
}
