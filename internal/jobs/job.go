package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/subsh-org/subsh/internal/subproc"
)

// State is a job's lifecycle position. Stopped is only reachable from
// Running via a stop signal; Done is terminal.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Job is one launched pipeline under job control. All fields are guarded
// by the owning Table's lock; the handles are set once by Attach and
// never replaced.
type Job struct {
	Ordinal    int
	Pgid       int
	Cmd        string
	Background bool
	Foreground bool
	State      State
	StartedAt  time.Time

	pids    []int
	handles []subproc.Handle
}

// Pids returns the OS pids of the job's external stages.
func (j *Job) Pids() []int {
	out := make([]int, len(j.pids))
	copy(out, j.pids)
	return out
}

// Info is a point-in-time snapshot of a job, safe to hold without the
// table lock.
type Info struct {
	Ordinal    int
	Pgid       int
	Cmd        string
	Background bool
	State      State
	Pids       []int

	// Mark is "+" for the current job, "-" for the previous one and a
	// space otherwise.
	Mark string
}

// Format renders the POSIX-style jobs line:
//
//	[1]+ running: sleep 5 & (12345)
func (i Info) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d]%s %s: %s", i.Ordinal, i.Mark, i.State, i.Cmd)
	if i.Background {
		b.WriteString(" &")
	}
	if len(i.Pids) > 0 {
		fmt.Fprintf(&b, " (%d)", i.Pids[len(i.Pids)-1])
	}
	return b.String()
}
