//go:build darwin

package sandbox

import (
	"fmt"
	"strings"
	"unsafe"
)

/*
#cgo LDFLAGS: -lSystem
#include <stdlib.h>
extern int sandbox_init(const char *profile, uint64_t flags, char **errorbuf);
extern void sandbox_free_error(char *errorbuf);
*/
import "C"

// generateSBPL builds an SBPL profile string from policy: deny everything
// by default, allow broad non-file operations, allow file reads, deny
// file writes globally, then selectively re-allow writes for writable
// paths (plus /dev and /private/var/folders always), and explicitly deny
// both read and write for denied paths.
func generateSBPL(p Policy) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process*)\n")
	b.WriteString("(allow mach*)\n")
	b.WriteString("(allow ipc*)\n")
	b.WriteString("(allow signal)\n")
	b.WriteString("(allow sysctl*)\n")
	b.WriteString("(allow network*)\n")
	b.WriteString("(allow pseudo-tty)\n")

	b.WriteString("(allow file*)\n")
	b.WriteString("(deny file-write*)\n")

	b.WriteString("(allow file-write* (subpath \"/dev\"))\n")
	b.WriteString("(allow file-write* (subpath \"/private/var/folders\"))\n")

	for _, path := range p.Writable {
		fmt.Fprintf(&b, "(allow file-write* (subpath %q))\n", path)
	}
	for _, path := range p.Denied {
		fmt.Fprintf(&b, "(deny file-read* (subpath %q))\n", path)
		fmt.Fprintf(&b, "(deny file-write* (subpath %q))\n", path)
	}

	return b.String()
}

// Available reports whether Seatbelt is present on this system. Every
// shipping macOS has libSystem's sandbox_init, so this is always true on
// darwin builds; it exists so doctor's report doesn't need its own
// build-tagged branch.
func Available() bool { return true }

// apply applies the Seatbelt sandbox to the current process via the
// private sandbox_init() call. Irreversible once applied.
func apply(p Policy) error {
	sbpl := generateSBPL(p)
	cProfile := C.CString(sbpl)
	defer C.free(unsafe.Pointer(cProfile))

	var errBuf *C.char
	ret := C.sandbox_init(cProfile, 0, &errBuf)
	if ret != 0 {
		msg := "unknown sandbox_init error"
		if errBuf != nil {
			msg = C.GoString(errBuf)
			C.sandbox_free_error(errBuf)
		}
		return fmt.Errorf("seatbelt: sandbox_init failed: %s", msg)
	}
	return nil
}
