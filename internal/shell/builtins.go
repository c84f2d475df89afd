package shell

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"

	"github.com/itchyny/gojq"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/subsh-org/subsh/internal/jobs"
	"github.com/subsh-org/subsh/internal/signal"
	"github.com/subsh-org/subsh/internal/subproc"
)

// registerBuiltins installs the job-control callables every session
// carries. They go through the same proxy machinery as user aliases, so
// the engine's own surface exercises the callable path.
func registerBuiltins(s *Session) {
	s.Aliases.SetFunc("jobs", s.jobsCmd)
	// fg and bg block the prompt and hand the terminal around, so they
	// must run on the launching goroutine.
	s.Aliases.SetFunc("fg", s.fgCmd, Unthreadable())
	s.Aliases.SetFunc("bg", s.bgCmd, Unthreadable())
	s.Aliases.SetFunc("disown", s.disownCmd)
	s.Aliases.SetFunc("kill", s.killCmd)
	s.Aliases.SetFunc("jsonq", jsonqCmd)
}

// jobsCmd lists the job table, current job first. -l renders the wide
// table with pgid, pids and the OS scheduler status of the lead process.
func (s *Session) jobsCmd(_ context.Context, call *subproc.Call) error {
	wide := false
	for _, arg := range call.Args {
		switch arg {
		case "-l", "--wide":
			wide = true
		default:
			return fmt.Errorf("unknown option %q", arg)
		}
	}

	infos := s.Jobs.List()
	if wide {
		t := table.NewWriter()
		t.SetOutputMirror(call.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"ID", "STATE", "PGID", "PID", "OS STATE", "COMMAND"})
		for _, info := range infos {
			pid := 0
			if len(info.Pids) > 0 {
				pid = info.Pids[len(info.Pids)-1]
			}
			t.AppendRow(table.Row{
				fmt.Sprintf("%d%s", info.Ordinal, strings.TrimSpace(info.Mark)),
				info.State.String(),
				info.Pgid,
				pid,
				jobs.ProcessStatus(pid),
				info.Cmd,
			})
		}
		t.Render()
	} else {
		for _, info := range infos {
			fmt.Fprintln(call.Stdout, info.Format())
		}
	}
	// Done jobs were just shown; drop them like an interactive shell does.
	s.Jobs.Reap()
	return nil
}

// fgCmd brings a job to the foreground and blocks until it finishes or
// stops again. Its own exit status is the job's.
func (s *Session) fgCmd(ctx context.Context, call *subproc.Call) error {
	spec := ""
	if len(call.Args) > 0 {
		spec = call.Args[0]
	}
	code, err := s.Jobs.Fg(s.Context(ctx), spec)
	if err != nil {
		return err
	}
	if code != 0 {
		return subproc.NewExitError(code)
	}
	return nil
}

// bgCmd continues a stopped job in the background.
func (s *Session) bgCmd(ctx context.Context, call *subproc.Call) error {
	spec := ""
	if len(call.Args) > 0 {
		spec = call.Args[0]
	}
	return s.Jobs.Bg(s.Context(ctx), spec)
}

// disownCmd removes jobs from the table without touching their processes.
// -c also continues a stopped job on the way out.
func (s *Session) disownCmd(ctx context.Context, call *subproc.Call) error {
	cont := false
	var specs []string
	for _, arg := range call.Args {
		if arg == "-c" || arg == "--continue" {
			cont = true
			continue
		}
		specs = append(specs, arg)
	}
	if len(specs) == 0 {
		specs = []string{""}
	}
	for _, spec := range specs {
		if err := s.Jobs.Disown(s.Context(ctx), spec, cont); err != nil {
			return err
		}
	}
	return nil
}

// killCmd delivers a signal to jobs or raw pids. The signal is named by
// the first argument as -TERM, -SIGTERM or -15; the default is SIGTERM.
// -l lists the known signals, or resolves names to numbers.
func (s *Session) killCmd(ctx context.Context, call *subproc.Call) error {
	sig := syscall.SIGTERM
	args := call.Args
	if len(args) > 0 && args[0] == "-l" {
		return listSignals(call, args[1:])
	}
	if len(args) > 0 && strings.HasPrefix(args[0], "-") {
		parsed, err := parseSignal(strings.TrimPrefix(args[0], "-"))
		if err != nil {
			return err
		}
		sig = parsed
		args = args[1:]
	}
	if len(args) == 0 {
		return errors.New("usage: kill [-l] [-SIGNAL] %job|pid ...")
	}
	for _, target := range args {
		if strings.HasPrefix(target, "%") {
			j, err := s.Jobs.Lookup(target)
			if err != nil {
				return err
			}
			if err := s.Jobs.Signal(s.Context(ctx), j, sig); err != nil {
				return err
			}
			// A stopped job cannot act on a termination signal until it
			// runs again.
			if s.Jobs.JobState(j) == jobs.Stopped && signal.IsTerminationSignal(sig) {
				_ = s.Jobs.Signal(s.Context(ctx), j, syscall.SIGCONT)
			}
			continue
		}
		pid, err := strconv.Atoi(target)
		if err != nil {
			return fmt.Errorf("no such job or pid %q", target)
		}
		if err := jobs.KillPid(pid, sig); err != nil {
			return fmt.Errorf("(%d): %w", pid, err)
		}
	}
	return nil
}

// parseSignal resolves TERM, SIGTERM and 15 spellings.
func parseSignal(name string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(name); err == nil && n > 0 {
		return syscall.Signal(n), nil
	}
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "SIG") {
		upper = "SIG" + upper
	}
	if sig, ok := signal.LookupSignal(upper); ok {
		return sig, nil
	}
	if n := signal.GetSignalNum(upper); n > 0 {
		return syscall.Signal(n), nil
	}
	return 0, fmt.Errorf("unknown signal %q", name)
}

func listSignals(call *subproc.Call, names []string) error {
	if len(names) > 0 {
		for _, name := range names {
			sig, err := parseSignal(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(call.Stdout, int(sig))
		}
		return nil
	}
	for n := 1; n < 32; n++ {
		if name := signal.GetSignalName(syscall.Signal(n)); name != "" {
			fmt.Fprintf(call.Stdout, "%2d) %s\n", n, name)
		}
	}
	return nil
}

// jsonqCmd filters JSON from stdin through a jq expression. It exists to
// have a pipeline-friendly callable in every session: `curl ... | jsonq
// .name` runs the last stage in-process.
func jsonqCmd(ctx context.Context, call *subproc.Call) error {
	if len(call.Args) != 1 {
		return errors.New("usage: jsonq <query>")
	}
	query, err := gojq.Parse(call.Args[0])
	if err != nil {
		return err
	}
	data, err := io.ReadAll(call.Stdin)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	iter := query.RunWithContext(ctx, doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if qerr, ok := v.(error); ok {
			return qerr
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(call.Stdout, string(out))
	}
}
