package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/subsh-org/subsh/internal/capture"
	"github.com/subsh-org/subsh/internal/subproc"
)

// ExitError carries a pipeline's nonzero exit status and whatever stderr
// was captured. It is only returned when the raise-on-error knob is set;
// otherwise nonzero exits live on the Result.
type ExitError struct {
	Cmd    string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Cmd, e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

// Result is the aggregate outcome of one pipeline run. Object captures
// hand it back while the pipeline may still be running; accessors that
// need the final state complete it lazily, and Partial offers a
// non-blocking view of the output collected so far.
type Result struct {
	ID          uuid.UUID
	ExecutedCmd string
	Mode        capture.Mode
	StartedAt   time.Time

	pids    []int
	handles []subproc.Handle
	out     *capture.Stream
	errs    *capture.Stream

	mu        sync.Mutex
	completed bool
	stopped   bool
	rtn       int
	codes     []int
	endedAt   time.Time
}

func newResult(p *Pipeline, pids []int, handles []subproc.Handle, out, errs *capture.Stream) *Result {
	return &Result{
		ID:          uuid.New(),
		ExecutedCmd: p.String(),
		Mode:        p.Capture,
		StartedAt:   time.Now(),
		pids:        pids,
		handles:     handles,
		out:         out,
		errs:        errs,
	}
}

// complete records each stage's exit status. The pipeline's returncode is
// the last stage's, per pipe convention. Called by the runner for
// foreground runs and by Wait for lazily completed ones.
func (r *Result) complete(codes []int, stopped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completed {
		return
	}
	r.completed = true
	r.stopped = stopped
	r.codes = codes
	if len(codes) > 0 {
		r.rtn = codes[len(codes)-1]
	}
	r.endedAt = time.Now()
}

// setStopped flags a foreground run that ended by suspension. The result
// stays incomplete; a later fg/bg cycle finishes it through Wait.
func (r *Result) setStopped() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// Wait blocks until every stage has exited and the capture streams have
// seen EOF, then returns the pipeline's returncode.
func (r *Result) Wait(ctx context.Context) (int, error) {
	r.mu.Lock()
	done := r.completed
	r.mu.Unlock()
	if !done {
		codes := make([]int, 0, len(r.handles))
		for _, h := range r.handles {
			st, err := h.Wait(ctx)
			if err != nil {
				return 0, err
			}
			if st.Stopped {
				// A stopped pipeline has no exit status yet.
				return 0, nil
			}
			codes = append(codes, st.Code)
		}
		r.complete(codes, false)
	}
	if r.out != nil {
		r.out.Wait()
	}
	if r.errs != nil {
		r.errs.Wait()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtn, nil
}

// Rtn returns the pipeline's effective returncode: the last stage's, per
// POSIX pipe convention. Blocks until the pipeline finishes.
func (r *Result) Rtn() int {
	rtn, _ := r.Wait(context.Background())
	return rtn
}

// Rtns returns every stage's exit status in pipeline order. Blocks until
// the pipeline finishes.
func (r *Result) Rtns() []int {
	_, _ = r.Wait(context.Background())
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.codes))
	copy(out, r.codes)
	return out
}

// Out returns the captured stdout as text. Blocks until EOF.
func (r *Result) Out() string {
	_, _ = r.Wait(context.Background())
	if r.out == nil {
		return ""
	}
	return r.out.String()
}

// Err returns the captured stderr, or "" when stderr was not captured.
func (r *Result) Err() string {
	_, _ = r.Wait(context.Background())
	if r.errs == nil {
		return ""
	}
	return r.errs.String()
}

// Partial returns the stdout collected so far without blocking.
func (r *Result) Partial() string {
	if r.out == nil {
		return ""
	}
	return r.out.String()
}

// Pid returns the pid of the last external stage, or 0 for a pipeline of
// in-process stages only.
func (r *Result) Pid() int {
	for i := len(r.pids) - 1; i >= 0; i-- {
		if r.pids[i] != 0 {
			return r.pids[i]
		}
	}
	return 0
}

// Pids returns every external stage pid in pipeline order; in-process
// stages report 0.
func (r *Result) Pids() []int {
	out := make([]int, len(r.pids))
	copy(out, r.pids)
	return out
}

// Stopped reports whether the foreground run ended by suspension rather
// than exit.
func (r *Result) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// EndedAt returns when the pipeline finished; zero while it is running.
func (r *Result) EndedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endedAt
}

// Lines iterates the captured output line by line.
func (r *Result) Lines() []string {
	_, _ = r.Wait(context.Background())
	if r.out == nil {
		return nil
	}
	return r.out.Lines()
}

// CheckLines is the checked iteration mode: it returns the output lines
// and an ExitError when the pipeline exited nonzero.
func (r *Result) CheckLines() ([]string, error) {
	lines := r.Lines()
	if code := r.Rtn(); code != 0 {
		return lines, &ExitError{Cmd: r.ExecutedCmd, Code: code, Stderr: r.Err()}
	}
	return lines, nil
}
