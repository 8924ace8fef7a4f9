//go:build !linux && !darwin

package sandbox

import "fmt"

func apply(p Policy) error {
	return fmt.Errorf("sandbox: no enforcement backend on this platform")
}

// Available always reports false: this platform has no wired enforcement
// backend.
func Available() bool { return false }
