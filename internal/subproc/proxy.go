package subproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
)

// BrokenPipeError reports that a stage's reader went away while it was
// still writing. Mid-pipe it is swallowed; on the final captured stage it
// surfaces on the result.
type BrokenPipeError struct {
	Args []string
}

func (e *BrokenPipeError) Error() string {
	return fmt.Sprintf("broken pipe on output of %v", e.Args)
}

// proxyHandle is the in-process counterpart of a spawned process: a
// callable running on a worker goroutine (or already finished, for the
// inline variant).
type proxyHandle struct {
	done chan struct{}

	mu sync.Mutex
	st Status
}

func (h *proxyHandle) Pid() int { return 0 }

func (h *proxyHandle) Wait(ctx context.Context) (Status, error) {
	select {
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.st, nil
	}
}

func (h *proxyHandle) TryWait() (Status, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.st, true
	default:
		return Status{}, false
	}
}

// Signal is a no-op: in-process stages are cancelled cooperatively through
// their context, never preemptively.
func (h *proxyHandle) Signal(_ os.Signal) error { return nil }

// startProxy runs a threadable callable on a worker goroutine with the
// planned stdio substituted for the session's real handles.
func startProxy(ctx context.Context, sp *Spec, stdio StdIO) Handle {
	h := &proxyHandle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		st := runCallable(ctx, sp, stdio)
		h.mu.Lock()
		h.st = st
		h.mu.Unlock()
	}()
	return h
}

// newInlineProxy runs an unthreadable callable synchronously on the
// launching goroutine, under the caller's context so it can be cancelled
// cooperatively. The pipeline's launch sequence blocks until the callable
// returns; that is the documented cost of unthreadable aliases.
func newInlineProxy(ctx context.Context, sp *Spec, stdio StdIO) Handle {
	h := &proxyHandle{done: make(chan struct{})}
	h.st = runCallable(ctx, sp, stdio)
	close(h.done)
	return h
}

// runCallable invokes the stage function with wired stdio, translates its
// error into an exit status and closes the stage's ends of the pipes so
// neighbours see EOF.
func runCallable(ctx context.Context, sp *Spec, stdio StdIO) Status {
	var stdin io.Reader = bytes.NewReader(nil)
	if stdio.In != nil {
		stdin = stdio.In
	}
	out := newSilentWriter(stdio.Out)
	errw := newSilentWriter(stdio.Err)

	call := &Call{
		Args:   sp.Args[1:],
		Stdin:  stdin,
		Stdout: out,
		Stderr: errw,
		Env:    sp.Env,
	}
	err := sp.Fn(ctx, call)
	if err == nil && out.broken && sp.LastInPipeline && sp.Capture.CapturesStdout() {
		err = &BrokenPipeError{Args: sp.Args}
	}

	st := Status{}
	switch {
	case err == nil:
	default:
		var coder ExitCoder
		if errors.As(err, &coder) {
			st.Code = coder.ExitCode()
		} else {
			st.Code = 1
		}
		if msg := err.Error(); msg != "" && !isBareExit(err) {
			fmt.Fprintf(errw, "%s: %s\n", sp.Args[0], msg)
		}
	}

	stdio.CloseOwned()
	return st
}

func isBareExit(err error) bool {
	var bare *exitError
	return errors.As(err, &bare)
}

// silentWriter fails writes silently once the reader side is gone,
// matching how shells treat mid-pipe SIGPIPE: the writer keeps "writing"
// into the void and exits on its own terms.
type silentWriter struct {
	w      io.Writer
	broken bool
}

func newSilentWriter(f *os.File) *silentWriter {
	if f == nil {
		return &silentWriter{w: io.Discard}
	}
	return &silentWriter{w: f}
}

func (s *silentWriter) Write(p []byte) (int, error) {
	if s.broken {
		return len(p), nil
	}
	n, err := s.w.Write(p)
	if err != nil {
		if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
			s.broken = true
			return len(p), nil
		}
		return n, err
	}
	return n, nil
}
