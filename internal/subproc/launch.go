package subproc

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/subsh-org/subsh/internal/logger"
)

// StdIO is the concrete stdio wiring for one stage. Files are passed to
// children as real descriptors so pipe transfer stays byte-exact and EOF
// follows descriptor lifetime. A nil slot means the stream is absent
// (connected to the null device for externals).
type StdIO struct {
	In  *os.File
	Out *os.File
	Err *os.File

	// Owned lists the files private to this stage's wiring: pipe ends and
	// redirect targets, never the session's terminal handles. External
	// stages: the parent closes them right after spawn (the child holds
	// dups). Callable stages: the proxy closes them when the callable
	// returns, which is what delivers EOF downstream.
	Owned []*os.File
}

// CloseOwned releases the stage-private files. Safe to call more than
// once; a file appears in Owned at most once even when two streams share
// it (merge redirects).
func (s *StdIO) CloseOwned() {
	for _, f := range s.Owned {
		if f != nil {
			_ = f.Close()
		}
	}
	s.Owned = nil
}

// Status is the outcome of waiting on a stage. A stage killed by signal N
// reports Code -N. Stopped stages have not exited; waiting again after a
// SIGCONT resumes observation.
type Status struct {
	Code    int
	Stopped bool
}

// Handle is a started stage. External stages expose their pid; in-process
// stages report pid 0.
type Handle interface {
	Pid() int
	// Wait blocks until the stage exits or stops. It is safe to call
	// again after a stop.
	Wait(ctx context.Context) (Status, error)
	// TryWait polls without blocking; ok is false while running.
	TryWait() (st Status, ok bool)
	// Signal delivers a signal to the stage. In-process stages only
	// honor termination requests via context, so Signal is a no-op
	// for them.
	Signal(sig os.Signal) error
}

// Launcher starts stages. The default implementation spawns real processes
// and goroutine proxies; tests substitute their own.
type Launcher interface {
	Start(ctx context.Context, sp *Spec, stdio StdIO, pgid int) (Handle, error)
}

// OSLauncher is the production Launcher.
type OSLauncher struct {
	// Poll is the base interval of the exit-observation loop.
	Poll time.Duration
}

func NewLauncher(poll time.Duration) *OSLauncher {
	if poll <= 0 {
		poll = 100 * time.Microsecond
	}
	return &OSLauncher{Poll: poll}
}

// Start dispatches on the spec kind resolved at build time.
func (l *OSLauncher) Start(ctx context.Context, sp *Spec, stdio StdIO, pgid int) (Handle, error) {
	switch sp.Kind {
	case External:
		h, err := l.startProcess(ctx, sp, stdio, pgid)
		// The child holds dups of the planned fds once spawned; the
		// parent's copies close either way so downstream readers see EOF.
		stdio.CloseOwned()
		if err != nil {
			return nil, fmt.Errorf("starting %q: %w", sp.Args[0], err)
		}
		logger.Debug(ctx, "stage started", "cmd", sp.Args[0], "pid", h.Pid(), "pgid", pgid)
		return h, nil
	case ThreadableCallable:
		return startProxy(ctx, sp, stdio), nil
	case ExecBlock:
		// Exec blocks follow the same thread split as callables: an
		// unthreadable block runs inline on the launching goroutine.
		if sp.Threadable {
			return startProxy(ctx, sp, stdio), nil
		}
		return newInlineProxy(ctx, sp, stdio), nil
	case UnthreadableCallable:
		return newInlineProxy(ctx, sp, stdio), nil
	default:
		return nil, fmt.Errorf("unknown stage kind %d", sp.Kind)
	}
}

// backoff grows linearly while a wait loop sees no state change, trading
// latency for idle CPU the longer a stage runs.
const maxBackoff = 1000
