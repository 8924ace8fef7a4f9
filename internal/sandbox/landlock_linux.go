//go:build linux

package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Landlock filesystem access-right bitmasks of ABI v1 through v3 (up to
// TRUNCATE); the ruleset handles exactly these, not the ABI v5 IOCTL_DEV
// right, and does not probe the kernel's ABI version first. Go has
// no equivalent crate in the retrieval pack, so this calls the raw
// syscalls directly via golang.org/x/sys/unix the way the teacher's own
// indirect x/sys dependency is otherwise only pulled in transitively.
const (
	landlockAccessFSExecute    = 1 << 0
	landlockAccessFSWriteFile  = 1 << 1
	landlockAccessFSReadFile   = 1 << 2
	landlockAccessFSReadDir    = 1 << 3
	landlockAccessFSRemoveDir  = 1 << 4
	landlockAccessFSRemoveFile = 1 << 5
	landlockAccessFSMakeChar   = 1 << 6
	landlockAccessFSMakeDir    = 1 << 7
	landlockAccessFSMakeReg    = 1 << 8
	landlockAccessFSMakeSock   = 1 << 9
	landlockAccessFSMakeFifo   = 1 << 10
	landlockAccessFSMakeBlock  = 1 << 11
	landlockAccessFSMakeSym    = 1 << 12
	landlockAccessFSRefer      = 1 << 13
	landlockAccessFSTruncate   = 1 << 14
)

const allAccessFS = landlockAccessFSExecute | landlockAccessFSWriteFile | landlockAccessFSReadFile |
	landlockAccessFSReadDir | landlockAccessFSRemoveDir | landlockAccessFSRemoveFile |
	landlockAccessFSMakeChar | landlockAccessFSMakeDir | landlockAccessFSMakeReg |
	landlockAccessFSMakeSock | landlockAccessFSMakeFifo | landlockAccessFSMakeBlock |
	landlockAccessFSMakeSym | landlockAccessFSRefer | landlockAccessFSTruncate

const readAccessFS = landlockAccessFSExecute | landlockAccessFSReadFile | landlockAccessFSReadDir

type rulesetAttr struct {
	HandledAccessFS uint64
}

type pathBeneathAttr struct {
	AllowedAccess uint64
	ParentFD      int32
	_             [4]byte
}

const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446

	rulesetAttrSizeFS = 8

	landlockRuleTypePathBeneath = 1

	prSetNoNewPrivs = 38
)

// apply applies a default-deny Landlock ruleset: writable paths get full
// access, readable paths get read access, denied paths are enforced by
// omission. Partial enforcement is a warning, not an error; the complete
// absence of enforcement is an error.
func apply(p Policy) error {
	rulesetFD, _, errno := unix.Syscall(sysLandlockCreateRuleset,
		uintptr(ptrTo(&rulesetAttr{HandledAccessFS: allAccessFS})),
		uintptr(rulesetAttrSizeFS), 0)
	if int(rulesetFD) < 0 {
		return fmt.Errorf("landlock: ruleset creation failed: %v (kernel may lack Landlock support)", errno)
	}
	fd := int(rulesetFD)
	defer unix.Close(fd)

	for _, path := range p.Writable {
		if err := addPathRule(fd, path, allAccessFS); err != nil {
			// A path that doesn't exist yet can't be accessed anyway;
			// skip it rather than failing the whole ruleset.
			continue
		}
	}
	for _, path := range p.Readable {
		if err := addPathRule(fd, path, readAccessFS); err != nil {
			continue
		}
	}
	// Denied paths are enforced by omission: Landlock is default-deny, so
	// anything not covered by an allow rule above is blocked. Policies
	// must be constructed so denied paths are not descendants of
	// writable paths, since Landlock cannot express "allow this subtree
	// except that nested path."

	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return fmt.Errorf("landlock: prctl(PR_SET_NO_NEW_PRIVS) failed: %v", errno)
	}

	ret, _, errno := unix.Syscall(sysLandlockRestrictSelf, uintptr(fd), 0, 0)
	if int(ret) < 0 {
		return fmt.Errorf("landlock: restrict_self failed: %v (not enforced)", errno)
	}
	if ret > 0 {
		fmt.Fprintln(stderrWriter, "[ua:sandbox] warning: Landlock partially enforced (kernel may lack full ABI support)")
	}
	return nil
}

// Available probes whether the running kernel supports Landlock at all,
// without applying any restriction: it creates a throwaway ruleset and
// immediately closes it.
func Available() bool {
	rulesetFD, _, errno := unix.Syscall(sysLandlockCreateRuleset,
		uintptr(ptrTo(&rulesetAttr{HandledAccessFS: allAccessFS})),
		uintptr(rulesetAttrSizeFS), 0)
	if int(rulesetFD) < 0 {
		_ = errno
		return false
	}
	unix.Close(int(rulesetFD))
	return true
}

func addPathRule(rulesetFD int, path string, access uint64) error {
	fd, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	attr := pathBeneathAttr{AllowedAccess: access, ParentFD: int32(fd)}
	ret, _, errno := unix.Syscall6(sysLandlockAddRule, uintptr(rulesetFD),
		landlockRuleTypePathBeneath, uintptr(ptrTo(&attr)), 0, 0, 0)
	if int(ret) < 0 {
		return fmt.Errorf("landlock: add rule for %s failed: %v", path, errno)
	}
	return nil
}
