package capture

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PtyAllocationError reports a failed pty allocation. It is informational:
// callers degrade to plain pipe capture and keep going.
type PtyAllocationError struct {
	Err error
}

func (e *PtyAllocationError) Error() string {
	return fmt.Sprintf("pty allocation failed: %v", e.Err)
}

func (e *PtyAllocationError) Unwrap() error {
	return e.Err
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
