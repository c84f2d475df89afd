package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/subsh-org/subsh/internal/logger"
	"github.com/subsh-org/subsh/internal/subproc"
)

// ErrNoSuchJob reports a job spec that matches nothing in the table.
var ErrNoSuchJob = errors.New("no such job")

// Table is the session's job registry and the only cross-goroutine mutable
// state in the engine. All mutation goes through its methods; a single
// mutex guards it.
type Table struct {
	mu    sync.Mutex
	jobs  map[int]*Job
	order []int // recency, front is the current (+) job

	// Terminal is the controlling terminal for foreground handoff; nil
	// disables handoff.
	Terminal *os.File
	// AutoContinue sends SIGCONT to a job on disown.
	AutoContinue bool

	shellPgid int
}

// NewTable creates an empty job table owned by one session.
func NewTable() *Table {
	return &Table{
		jobs:      make(map[int]*Job),
		shellPgid: shellProcessGroup(),
	}
}

// Add registers a launched pipeline and assigns the lowest free ordinal,
// starting at 1. The new job becomes the current (+) job.
func (t *Table) Add(cmd string, pgid int, pids []int, handles []subproc.Handle, background bool) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	ordinal := 1
	for {
		if _, taken := t.jobs[ordinal]; !taken {
			break
		}
		ordinal++
	}
	j := &Job{
		Ordinal:    ordinal,
		Pgid:       pgid,
		Cmd:        cmd,
		Background: background,
		Foreground: !background,
		State:      Running,
		StartedAt:  time.Now(),
		pids:       pids,
		handles:    handles,
	}
	t.jobs[ordinal] = j
	t.order = append([]int{ordinal}, t.order...)
	return j
}

// Attach binds the launched stages to a job registered before the launch
// sequence started.
func (t *Table) Attach(j *Job, pgid int, pids []int, handles []subproc.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j.Pgid = pgid
	j.pids = pids
	j.handles = handles
}

// Remove drops a job from the table regardless of its state.
func (t *Table) Remove(j *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(j.Ordinal)
}

func (t *Table) remove(ordinal int) {
	delete(t.jobs, ordinal)
	for i, o := range t.order {
		if o == ordinal {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// List refreshes every job's state from its handles and returns snapshots
// in recency order, the current job first. A running foreground job is
// skipped: interactive shells list only background and stopped jobs, so a
// `jobs` invocation never shows its own pipeline.
func (t *Table) List() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresh()

	infos := make([]Info, 0, len(t.order))
	for _, ordinal := range t.order {
		j := t.jobs[ordinal]
		if j.Foreground && j.State == Running {
			continue
		}
		mark := " "
		if len(infos) == 0 {
			mark = "+"
		} else if len(infos) == 1 {
			mark = "-"
		}
		infos = append(infos, Info{
			Ordinal:    j.Ordinal,
			Pgid:       j.Pgid,
			Cmd:        j.Cmd,
			Background: j.Background,
			State:      j.State,
			Pids:       j.Pids(),
			Mark:       mark,
		})
	}
	return infos
}

// Reap removes Done jobs and returns their snapshots so the caller can
// print completion notices.
func (t *Table) Reap() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresh()

	var reaped []Info
	for _, ordinal := range append([]int(nil), t.order...) {
		j := t.jobs[ordinal]
		if j.State != Done {
			continue
		}
		reaped = append(reaped, Info{
			Ordinal:    j.Ordinal,
			Pgid:       j.Pgid,
			Cmd:        j.Cmd,
			Background: j.Background,
			State:      Done,
			Pids:       j.Pids(),
			Mark:       " ",
		})
		t.remove(ordinal)
	}
	return reaped
}

// refresh polls every handle without blocking and promotes jobs whose
// stages have all exited to Done. Jobs still waiting for Attach have no
// handles and keep their state. Caller holds the lock.
func (t *Table) refresh() {
	for _, j := range t.jobs {
		if j.State == Done || len(j.handles) == 0 {
			continue
		}
		done := true
		for _, h := range j.handles {
			if _, ok := h.TryWait(); !ok {
				done = false
				break
			}
		}
		if done {
			j.State = Done
		}
	}
}

// Lookup resolves a job spec: "" or "+" is the current job, "-" the
// previous one, "%N" or "N" an explicit ordinal. Jobspecs resolve among
// background and stopped jobs; the running foreground pipeline is not
// addressable, so a builtin never resolves its own pipeline.
func (t *Table) Lookup(spec string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidates := make([]*Job, 0, len(t.order))
	for _, ordinal := range t.order {
		j := t.jobs[ordinal]
		if j.Foreground && j.State == Running {
			continue
		}
		candidates = append(candidates, j)
	}

	switch spec {
	case "", "+", "%+":
		if len(candidates) == 0 {
			return nil, ErrNoSuchJob
		}
		return candidates[0], nil
	case "-", "%-":
		if len(candidates) < 2 {
			return nil, ErrNoSuchJob
		}
		return candidates[1], nil
	}
	ordinal, err := strconv.Atoi(strings.TrimPrefix(spec, "%"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchJob, spec)
	}
	for _, j := range candidates {
		if j.Ordinal == ordinal {
			return j, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSuchJob, spec)
}

// WaitForeground blocks until the job's stages have all exited or the
// group stops. It owns the terminal handoff: the job's group gets the
// controlling terminal while it runs and the shell takes it back after.
// The returned code is the last stage's exit status, per pipe convention.
func (t *Table) WaitForeground(ctx context.Context, j *Job) (code int, stopped bool, err error) {
	t.setForeground(j, true)
	if j.Pgid > 0 {
		t.giveTerminal(ctx, j.Pgid)
		defer t.reclaimTerminal(ctx)
	}

	t.mu.Lock()
	handles := j.handles
	t.mu.Unlock()
	for _, h := range handles {
		st, werr := h.Wait(ctx)
		if werr != nil {
			t.setState(j, Stopped)
			return 0, false, werr
		}
		if st.Stopped {
			t.setState(j, Stopped)
			t.setForeground(j, false)
			logger.Write(ctx, t.snapshot(j).Format())
			return 0, true, nil
		}
		code = st.Code
	}
	t.setState(j, Done)
	t.Remove(j)
	return code, false, nil
}

// Fg resolves a job, continues it if stopped, moves it to the front and
// re-attaches the caller to its foreground wait.
func (t *Table) Fg(ctx context.Context, spec string) (int, error) {
	j, err := t.Lookup(spec)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	t.remove(j.Ordinal)
	t.jobs[j.Ordinal] = j
	t.order = append([]int{j.Ordinal}, t.order...)
	wasStopped := j.State == Stopped
	j.State = Running
	j.Background = false
	t.mu.Unlock()

	logger.Write(ctx, j.Cmd)
	if wasStopped {
		if err := t.signalGroup(ctx, j, syscall.SIGCONT); err != nil {
			return 0, err
		}
	}
	code, _, err := t.WaitForeground(ctx, j)
	return code, err
}

// Bg continues a stopped job without re-attaching; it stays in the table
// as a running background job.
func (t *Table) Bg(ctx context.Context, spec string) error {
	j, err := t.Lookup(spec)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if j.State == Done {
		t.mu.Unlock()
		return fmt.Errorf("job [%d] has already finished", j.Ordinal)
	}
	j.State = Running
	j.Background = true
	j.Foreground = false
	t.mu.Unlock()

	if err := t.signalGroup(ctx, j, syscall.SIGCONT); err != nil {
		return err
	}
	logger.Write(ctx, t.snapshot(j).Format())
	return nil
}

// Disown removes a job from the table without touching its running state;
// the processes keep going and survive session teardown. Captured output
// already wired to a result object stays readable there. With the table's
// AutoContinue (or cont) set a stopped job also gets SIGCONT; otherwise
// the caller is told how to continue it by hand.
func (t *Table) Disown(ctx context.Context, spec string, cont bool) error {
	j, err := t.Lookup(spec)
	if err != nil {
		return err
	}
	t.mu.Lock()
	stoppedNow := j.State == Stopped
	t.remove(j.Ordinal)
	t.mu.Unlock()

	if stoppedNow && (cont || t.AutoContinue) {
		if err := t.signalGroup(ctx, j, syscall.SIGCONT); err != nil {
			logger.Warn(ctx, "disown: continue failed", "err", err)
		}
		stoppedNow = false
	}
	if stoppedNow {
		logger.Write(ctx, fmt.Sprintf("job [%d] is stopped; continue it with: kill -CONT -%d", j.Ordinal, j.Pgid))
	}
	for _, pid := range j.Pids() {
		logger.Debug(ctx, "disowned process", "pid", pid, "alive", processAlive(pid), "status", ProcessStatus(pid))
	}
	return nil
}

// Signal delivers a signal to a job's whole process group.
func (t *Table) Signal(ctx context.Context, j *Job, sig syscall.Signal) error {
	return t.signalGroup(ctx, j, sig)
}

// JobState reads a job's state under the table lock.
func (t *Table) JobState(j *Job) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return j.State
}

// HupAll hangs up every surviving job on session close: SIGHUP then
// SIGCONT so stopped jobs get a chance to handle the hangup, mirroring
// shell exit behavior.
func (t *Table) HupAll(ctx context.Context) {
	t.mu.Lock()
	live := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		if j.State != Done {
			live = append(live, j)
		}
	}
	t.jobs = make(map[int]*Job)
	t.order = nil
	t.mu.Unlock()

	for _, j := range live {
		if err := t.signalGroup(ctx, j, syscall.SIGHUP); err != nil {
			continue
		}
		_ = t.signalGroup(ctx, j, syscall.SIGCONT)
	}
}

// signalGroup prefers group delivery and falls back to per-pid signalling
// where the platform refuses; only a total failure surfaces.
func (t *Table) signalGroup(ctx context.Context, j *Job, sig syscall.Signal) error {
	if err := killGroup(j.Pgid, sig); err == nil {
		return nil
	}
	delivered := false
	for _, h := range j.handles {
		if h.Signal(sig) == nil {
			delivered = true
		}
	}
	if delivered || len(j.handles) == 0 {
		return nil
	}
	err := &SignalDeliveryError{Pgid: j.Pgid, Sig: sig}
	logger.Warn(ctx, "signal delivery degraded", "pgid", j.Pgid, "sig", sig.String())
	return err
}

func (t *Table) setState(j *Job, s State) {
	t.mu.Lock()
	j.State = s
	t.mu.Unlock()
}

func (t *Table) setForeground(j *Job, fg bool) {
	t.mu.Lock()
	j.Foreground = fg
	j.Background = !fg
	t.mu.Unlock()
}

func (t *Table) snapshot(j *Job) Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	mark := " "
	if len(t.order) > 0 && t.order[0] == j.Ordinal {
		mark = "+"
	} else if len(t.order) > 1 && t.order[1] == j.Ordinal {
		mark = "-"
	}
	return Info{
		Ordinal:    j.Ordinal,
		Pgid:       j.Pgid,
		Cmd:        j.Cmd,
		Background: j.Background,
		State:      j.State,
		Pids:       j.Pids(),
		Mark:       mark,
	}
}

func (t *Table) giveTerminal(ctx context.Context, pgid int) {
	if t.Terminal == nil {
		return
	}
	if err := setTerminalGroup(t.Terminal, pgid); err != nil {
		logger.Debug(ctx, "terminal handoff unavailable", "err", err)
	}
}

func (t *Table) reclaimTerminal(ctx context.Context) {
	if t.Terminal == nil || t.shellPgid == 0 {
		return
	}
	if err := setTerminalGroup(t.Terminal, t.shellPgid); err != nil {
		logger.Debug(ctx, "terminal reclaim unavailable", "err", err)
	}
}

// SignalDeliveryError reports that neither group nor per-pid delivery
// worked. Job control degrades; nothing panics.
type SignalDeliveryError struct {
	Pgid int
	Sig  syscall.Signal
}

func (e *SignalDeliveryError) Error() string {
	return fmt.Sprintf("cannot deliver %s to process group %d", e.Sig, e.Pgid)
}
