//go:build windows
// +build windows

package subproc

import (
	"context"
	"os"
	"os/exec"
	"sync"
)

// startProcess spawns an external stage. Windows has no process groups in
// the POSIX sense; pgid is ignored and stop detection is unavailable.
func (l *OSLauncher) startProcess(ctx context.Context, sp *Spec, stdio StdIO, _ int) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(sp.Cmd, sp.Args[1:]...)
	cmd.Args[0] = sp.Args[0]
	cmd.Env = sp.Environ()
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
	h := &processHandle{pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		err := cmd.Wait()
		code := cmd.ProcessState.ExitCode()
		if err != nil && code == 0 {
			code = 1
		}
		h.mu.Lock()
		h.st = Status{Code: code}
		h.mu.Unlock()
	}()
	return h, nil
}

type processHandle struct {
	pid  int
	done chan struct{}

	mu sync.Mutex
	st Status
}

func (h *processHandle) Pid() int {
	return h.pid
}

func (h *processHandle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.st, nil
	}
}

func (h *processHandle) TryWait() (Status, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.st, true
	default:
		return Status{}, false
	}
}

func (h *processHandle) Signal(sig os.Signal) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	proc, err := os.FindProcess(h.pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}
