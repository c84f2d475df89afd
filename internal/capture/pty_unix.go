//go:build !windows
// +build !windows

package capture

import (
	"os"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// OpenPty allocates a pseudo-terminal and sizes the slave like the real
// terminal so full-screen programs lay out correctly. The caller hands the
// slave to the child and reads the master.
func OpenPty() (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, &PtyAllocationError{Err: err}
	}
	if rows, cols, ok := terminalSize(os.Stdout); ok {
		_ = pty.Setsize(master, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	} else {
		_ = pty.Setsize(master, &pty.Winsize{Rows: 24, Cols: 80})
	}
	return master, slave, nil
}

func terminalSize(f *os.File) (rows, cols int, ok bool) {
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil || rows <= 0 || cols <= 0 {
		return 0, 0, false
	}
	return rows, cols, true
}
