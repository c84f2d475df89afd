//go:build !windows
// +build !windows

package jobs

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// killGroup delivers a signal to a whole process group.
func killGroup(pgid int, sig syscall.Signal) error {
	if pgid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(-pgid, sig)
}

// KillPid delivers a signal to a single process.
func KillPid(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(pid, sig)
}

// setTerminalGroup makes pgid the terminal's foreground process group.
// Best-effort: callers log and carry on when the platform refuses.
func setTerminalGroup(tty *os.File, pgid int) error {
	return unix.IoctlSetPointerInt(int(tty.Fd()), unix.TIOCSPGRP, pgid)
}

func shellProcessGroup() int {
	return unix.Getpgrp()
}
