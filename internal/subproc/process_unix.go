//go:build !windows
// +build !windows

package subproc

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// startProcess spawns an external stage in the pipeline's process group.
// pgid 0 makes the new process the group leader; subsequent stages pass
// the leader's pid to join it.
func (l *OSLauncher) startProcess(ctx context.Context, sp *Spec, stdio StdIO, pgid int) (Handle, error) {
	// Cancellation is signal-driven through the job controller, so the
	// context only gates the launch itself.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(sp.Cmd, sp.Args[1:]...)
	cmd.Args[0] = sp.Args[0]
	cmd.Env = sp.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    pgid,
	}
	// *os.File stdio passes descriptors straight through; nil slots fall
	// back to the null device inside exec.
	if stdio.In != nil {
		cmd.Stdin = stdio.In
	}
	if stdio.Out != nil {
		cmd.Stdout = stdio.Out
	}
	if stdio.Err != nil {
		cmd.Stderr = stdio.Err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &processHandle{pid: cmd.Process.Pid, poll: l.Poll}, nil
}

// processHandle observes one external stage through wait4 so stop and
// continue events are visible to job control. exec.Cmd only spawns; the
// handle owns reaping.
type processHandle struct {
	pid  int
	poll time.Duration

	mu    sync.Mutex
	final *Status
}

func (h *processHandle) Pid() int {
	return h.pid
}

// Wait blocks until the process exits or stops. A stopped process is not
// reaped; calling Wait again resumes observation after SIGCONT.
func (h *processHandle) Wait(ctx context.Context) (Status, error) {
	if st, ok := h.reaped(); ok {
		return st, nil
	}
	sleep := h.poll
	for {
		st, ok, err := h.poll1()
		if err != nil {
			return Status{Code: -1}, err
		}
		if ok {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return Status{}, ctx.Err()
		case <-time.After(sleep):
		}
		if sleep < h.poll*maxBackoff {
			sleep += h.poll
		}
	}
}

// TryWait polls once without blocking. ok stays false while the process
// runs or is merely stopped.
func (h *processHandle) TryWait() (Status, bool) {
	if st, ok := h.reaped(); ok {
		return st, true
	}
	st, ok, err := h.poll1()
	if err != nil || st.Stopped {
		return Status{}, false
	}
	return st, ok
}

func (h *processHandle) Signal(sig os.Signal) error {
	if _, ok := h.reaped(); ok {
		return nil
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		s = syscall.SIGTERM
	}
	return unix.Kill(h.pid, s)
}

func (h *processHandle) reaped() (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.final != nil {
		return *h.final, true
	}
	return Status{}, false
}

// poll1 runs one non-blocking wait4 under the lock, so concurrent waiters
// (job table and a background result) cannot clobber each other's view.
// ok reports that a state worth returning (exit, signal death, stop) was
// observed.
func (h *processHandle) poll1() (Status, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.final != nil {
		return *h.final, true, nil
	}
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(h.pid, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
	if err == unix.EINTR {
		return Status{}, false, nil
	}
	if err == unix.ECHILD {
		// Reaped by something outside this handle; report a generic
		// failure exit rather than spinning forever.
		st := Status{Code: -1}
		h.final = &st
		return st, true, nil
	}
	if err != nil {
		return Status{}, false, err
	}
	if wpid != h.pid {
		return Status{}, false, nil
	}
	switch {
	case ws.Exited():
		st := Status{Code: ws.ExitStatus()}
		h.final = &st
		return st, true, nil
	case ws.Signaled():
		// Death by signal N reports -N, like waitpid WIFSIGNALED decoding.
		st := Status{Code: -int(ws.Signal())}
		h.final = &st
		return st, true, nil
	case ws.Stopped():
		return Status{Stopped: true}, true, nil
	}
	// Continued; keep observing.
	return Status{}, false, nil
}
