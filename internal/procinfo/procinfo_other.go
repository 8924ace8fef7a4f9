//go:build !linux && !darwin

package procinfo

func processInfo(pid int) (Info, bool) { return Info{}, false }

func cwdOf(pid int) string { return "" }

func listAllPIDs() []int { return nil }
