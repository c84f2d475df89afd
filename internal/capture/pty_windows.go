//go:build windows
// +build windows

package capture

import (
	"errors"
	"os"
)

var errPtyUnsupported = errors.New("pty is not supported on windows")

// OpenPty always fails on windows; callers fall back to pipe capture.
func OpenPty() (master, slave *os.File, err error) {
	return nil, nil, &PtyAllocationError{Err: errPtyUnsupported}
}
