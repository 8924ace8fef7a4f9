package sandbox

import (
	"os"
	"unsafe"
)

var stderrWriter = os.Stderr

func ptrTo[T any](v *T) unsafe.Pointer { return unsafe.Pointer(v) }
