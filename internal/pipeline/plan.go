package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/subsh-org/subsh/internal/capture"
	"github.com/subsh-org/subsh/internal/logger"
	"github.com/subsh-org/subsh/internal/subproc"
)

// plan is the computed fd wiring for one pipeline: concrete stdio per
// stage, the capture streams attached to the last stage and the reader
// goroutines to kick off before launch.
type plan struct {
	stdio []subproc.StdIO
	out   *capture.Stream
	errs  *capture.Stream

	drains []func()
	opened []*os.File

	ptySlave     *os.File
	errsAttached bool
}

// start launches the capture readers. They must run before any stage so a
// stage writing more than a pipe buffer during the launch sequence cannot
// deadlock it.
func (pl *plan) start() {
	for _, d := range pl.drains {
		d()
	}
	pl.drains = nil
}

// discard closes everything the planner opened. Only used when planning
// or launching fails before the wiring changed hands.
func (pl *plan) discard() {
	for _, f := range pl.opened {
		if f != nil {
			_ = f.Close()
		}
	}
	pl.opened = nil
}

func (pl *plan) track(files ...*os.File) {
	pl.opened = append(pl.opened, files...)
}

// plan computes the wiring for every stage. Pipe precedence follows shell
// convention: an explicit redirect on a stream wins over the pipe the
// planner would install there, and the orphaned neighbour sees EOF (or a
// broken pipe) instead.
func (r *Runner) plan(ctx context.Context, p *Pipeline) (pl *plan, err error) {
	n := len(p.Stages)
	pl = &plan{
		stdio: make([]subproc.StdIO, n),
		out:   capture.NewStream(),
		errs:  capture.NewStream(),
	}
	defer func() {
		if err != nil {
			pl.discard()
		}
	}()

	// Read end of the pipe installed between the previous stage and this
	// one, if any.
	var nextIn *os.File

	for i, sp := range p.Stages {
		stdio := subproc.StdIO{}
		own := func(f *os.File) {
			stdio.Owned = append(stdio.Owned, f)
			pl.track(f)
		}
		isLast := i == n-1

		// Stdin: pipe from the previous stage, then an explicit < wins.
		// An overridden pipe end stays owned so the upstream writer gets
		// a broken pipe rather than a hang.
		if nextIn != nil {
			stdio.In = nextIn
			own(nextIn)
			nextIn = nil
		}
		for _, rd := range sp.Redirects {
			if rd.Mode != subproc.Read {
				continue
			}
			f, oerr := rd.Open()
			if oerr != nil {
				return nil, fmt.Errorf("redirect %s: %w", rd, oerr)
			}
			stdio.In = f
			own(f)
		}
		if stdio.In == nil && i == 0 && !sp.Background {
			stdio.In = r.Stdin
		}

		// Stdout base wiring: pipe to the next stage, or the capture
		// adapter for the last one. An explicit redirect suppresses both.
		if !sp.HasRedirect(subproc.Stdout) {
			if !isLast {
				pr, pw, perr := os.Pipe()
				if perr != nil {
					return nil, fmt.Errorf("pipe for %q: %w", sp.Args[0], perr)
				}
				stdio.Out = pw
				own(pw)
				pl.track(pr)
				nextIn = pr
			} else if stdio.Out, err = r.wireLastStdout(ctx, p, sp, pl, own); err != nil {
				return nil, err
			}
		} else if isLast {
			pl.out.Finish()
		}

		// Stderr base wiring: object capture takes the last stage's
		// stderr; everything else flows to the terminal. A stage sharing
		// a pty keeps stderr on the slave so interleaving matches what a
		// real terminal would show.
		if !sp.HasRedirect(subproc.Stderr) {
			switch {
			case isLast && p.Capture.CapturesStderr() && !sp.Uncapturable:
				pr, pw, perr := os.Pipe()
				if perr != nil {
					return nil, fmt.Errorf("stderr pipe for %q: %w", sp.Args[0], perr)
				}
				stdio.Err = pw
				own(pw)
				pl.track(pr)
				pl.attach(pl.errs, pr)
			case isLast && stdio.Out != nil && stdio.Out == pl.ptySlave:
				stdio.Err = pl.ptySlave
			default:
				stdio.Err = r.Stderr
			}
		}
		if isLast && !pl.errsAttached {
			pl.errs.Finish()
		}

		// Explicit file redirects override, then merges resolve against
		// whatever the other stream ended up as. Merge interleaving is
		// OS pipe-buffer order.
		for _, rd := range sp.Redirects {
			switch rd.Mode {
			case subproc.Write, subproc.Append:
				f, oerr := rd.Open()
				if oerr != nil {
					return nil, fmt.Errorf("redirect %s: %w", rd, oerr)
				}
				own(f)
				switch rd.Stream {
				case subproc.Stdout:
					stdio.Out = f
				case subproc.Stderr:
					stdio.Err = f
				case subproc.OutErr:
					stdio.Out = f
					stdio.Err = f
				}
			}
		}
		for _, rd := range sp.Redirects {
			switch rd.Mode {
			case subproc.MergeErrToOut:
				stdio.Err = stdio.Out
			case subproc.MergeOutToErr:
				stdio.Out = stdio.Err
			}
		}

		pl.stdio[i] = stdio
	}
	return pl, nil
}

// wireLastStdout attaches the capture adapter to the final stage per the
// pipeline's capture mode. It returns the file the stage writes to; nil
// means the null device.
func (r *Runner) wireLastStdout(ctx context.Context, p *Pipeline, sp *subproc.Spec, pl *plan, own func(*os.File)) (*os.File, error) {
	mode := p.Capture

	// Full-screen programs own the terminal; nothing is buffered no
	// matter what was asked for.
	if sp.Uncapturable {
		pl.out.Finish()
		return r.Stdout, nil
	}

	if mode.CapturesStdout() {
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("capture pipe for %q: %w", sp.Args[0], err)
		}
		own(pw)
		pl.track(pr)
		pl.attach(pl.out, pr)
		return pw, nil
	}

	// Uncaptured modes: plain terminal unless the session wants output
	// teed into the result as well.
	wantTee := (r.Exec.CaptureAlways || r.Exec.StoreStdout) &&
		sp.Threadable && !sp.Background && r.Stdout != nil
	if !wantTee {
		pl.out.Finish()
		return r.Stdout, nil
	}

	// The first master read is delayed only when the stage's input comes
	// through a pipe, where the producer may still be priming it.
	var delay = r.Exec.PtyReadDelay
	if len(p.Stages) == 1 && !sp.HasRedirect(subproc.Stdin) {
		delay = 0
	}

	if r.Interactive && sp.Kind == subproc.External && capture.IsTerminal(r.Stdout) {
		master, slave, err := capture.OpenPty()
		if err == nil {
			own(slave)
			pl.track(master)
			pl.ptySlave = slave
			opts := capture.TeeOptions{Delay: delay, Capture: true}
			pl.attachTee(pl.out, master, r.Stdout, opts)
			return slave, nil
		}
		// Degrade to a plain pipe tee: output is still shown and
		// captured, the program just loses its terminal.
		logger.Warn(ctx, "pty unavailable, teeing through a pipe", "err", err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("tee pipe for %q: %w", sp.Args[0], err)
	}
	own(pw)
	pl.track(pr)
	pl.attachTee(pl.out, pr, r.Stdout, capture.TeeOptions{Capture: true})
	return pw, nil
}

func (pl *plan) attach(s *capture.Stream, pr *os.File) {
	if s == pl.errs {
		pl.errsAttached = true
	}
	pl.drains = append(pl.drains, func() { go s.Drain(pr) })
}

func (pl *plan) attachTee(s *capture.Stream, src *os.File, dst *os.File, opts capture.TeeOptions) {
	pl.drains = append(pl.drains, func() { go s.Tee(src, dst, opts) })
}
