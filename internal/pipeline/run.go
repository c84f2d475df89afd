package pipeline

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/samber/lo"

	"github.com/subsh-org/subsh/internal/config"
	"github.com/subsh-org/subsh/internal/jobs"
	"github.com/subsh-org/subsh/internal/logger"
	"github.com/subsh-org/subsh/internal/signal"
	"github.com/subsh-org/subsh/internal/subproc"
)

// Runner launches planned pipelines and supervises them through the job
// table. One Runner serves one session; its terminal files never change.
type Runner struct {
	Launcher subproc.Launcher
	Jobs     *jobs.Table
	Exec     config.Exec

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Interactive enables pty teeing; non-interactive sessions always
	// capture through plain pipes.
	Interactive bool
}

// Run wires, launches and supervises one pipeline. Foreground runs block
// until the pipeline exits or stops; background runs return as soon as
// every stage is spawned. The returned Result is complete for finished
// foreground runs and lazily completed otherwise.
func (r *Runner) Run(ctx context.Context, p *Pipeline) (*Result, error) {
	pl, err := r.plan(ctx, p)
	if err != nil {
		return nil, err
	}
	pl.start()

	// The job is registered before anything launches so lookups never
	// race the launch sequence; the handles attach once every stage is up.
	job := r.Jobs.Add(p.String(), 0, nil, nil, p.Background)

	n := len(p.Stages)
	handles := make([]subproc.Handle, 0, n)
	pids := make([]int, 0, n)
	pgid := 0
	for i, sp := range p.Stages {
		h, lerr := r.Launcher.Start(ctx, sp, pl.stdio[i], pgid)
		if lerr != nil {
			// Release the wiring of the stages that never launched so
			// already-running neighbours and the capture readers see EOF.
			for j := i; j < n; j++ {
				pl.stdio[j].CloseOwned()
			}
			r.Jobs.Remove(job)
			return nil, fmt.Errorf("pipeline stage %d: %w", i, lerr)
		}
		handles = append(handles, h)
		pids = append(pids, h.Pid())
		if pgid == 0 && h.Pid() != 0 {
			pgid = h.Pid()
		}
	}

	res := newResult(p, pids, handles, pl.out, pl.errs)
	extPids := lo.Filter(pids, func(pid int, _ int) bool { return pid != 0 })
	r.Jobs.Attach(job, pgid, extPids, handles)
	logger.Debug(ctx, "pipeline launched",
		"id", res.ID.String(), "cmd", res.ExecutedCmd, "pgid", pgid, "background", p.Background)

	if p.Background {
		return res, nil
	}

	code, stopped, err := r.Jobs.WaitForeground(ctx, job)
	if err != nil {
		return res, err
	}
	if stopped {
		res.setStopped()
		return res, nil
	}

	// Capture readers drain whatever is still buffered before the run
	// reports completion. Every handle has exited, so the per-stage
	// statuses are collectable without blocking.
	pl.out.Wait()
	pl.errs.Wait()
	codes := make([]int, len(handles))
	for i, h := range handles {
		if st, ok := h.TryWait(); ok {
			codes[i] = st.Code
		}
	}
	res.complete(codes, false)

	if msg := signal.ExitMessageForCode(code); msg != "" {
		logger.Write(ctx, msg)
	}
	if r.Exec.RaiseOnError {
		if i, failed := firstFailedStage(codes); failed {
			return res, &ExitError{Cmd: p.Stages[i].String(), Code: codes[i], Stderr: res.Err()}
		}
	}
	return res, nil
}

// firstFailedStage picks the stage whose nonzero exit the raise-on-error
// knob reports. A mid-pipe stage killed by SIGPIPE failed only because its
// reader went away; that death stays silent.
func firstFailedStage(codes []int) (int, bool) {
	for i, c := range codes {
		if c == 0 {
			continue
		}
		if i < len(codes)-1 && c == -int(syscall.SIGPIPE) {
			continue
		}
		return i, true
	}
	return 0, false
}

// RunChain runs pipelines strictly in order. And/Or links gate on the
// previous pipeline's exit status; a skipped link leaves that status in
// place, so `a && b || c` short-circuits the way shells do. Background
// pipelines gate as success. The last executed pipeline's result is
// returned.
func (r *Runner) RunChain(ctx context.Context, c *Chain) (*Result, error) {
	var last *Result
	lastCode := 0
	for i, link := range c.Links {
		if i > 0 {
			if link.Op == And && lastCode != 0 {
				continue
			}
			if link.Op == Or && lastCode == 0 {
				continue
			}
		}
		res, err := r.Run(ctx, link.Pipeline)
		if err != nil {
			if res == nil {
				return last, err
			}
			return res, err
		}
		last = res
		if link.Pipeline.Background || res.Stopped() {
			lastCode = 0
		} else {
			lastCode = res.Rtn()
		}
	}
	return last, nil
}
