package jobs

import (
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// processAlive reports whether a pid still names a live process. Used for
// diagnostics around disown, where the table has let go of the handles.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// ProcessStatus returns the OS scheduler status of a pid ("running",
// "sleep", "zombie", ...) or "" when it cannot be determined.
func ProcessStatus(pid int) string {
	if pid <= 0 {
		return ""
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	statuses, err := p.Status()
	if err != nil || len(statuses) == 0 {
		return ""
	}
	return strings.Join(statuses, ",")
}
