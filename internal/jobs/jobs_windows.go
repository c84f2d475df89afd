//go:build windows
// +build windows

package jobs

import (
	"errors"
	"os"
	"syscall"
)

var errNoProcessGroups = errors.New("process groups are not supported on windows")

// killGroup always fails on windows; the table falls back to per-pid
// delivery through the stage handles.
func killGroup(_ int, _ syscall.Signal) error {
	return errNoProcessGroups
}

// KillPid always fails on windows; arbitrary signal delivery needs unix.
func KillPid(_ int, _ syscall.Signal) error {
	return errNoProcessGroups
}

func setTerminalGroup(_ *os.File, _ int) error {
	return errNoProcessGroups
}

func shellProcessGroup() int {
	return 0
}
