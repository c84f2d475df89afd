package shell

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/subsh-org/subsh/internal/capture"
	"github.com/subsh-org/subsh/internal/config"
	"github.com/subsh-org/subsh/internal/jobs"
	"github.com/subsh-org/subsh/internal/logger"
	"github.com/subsh-org/subsh/internal/pipeline"
	"github.com/subsh-org/subsh/internal/subproc"
)

// Session owns all process-wide mutable state of the engine: the alias
// registry, the job table and the environment. It is constructed
// explicitly and passed by reference; there are no package globals.
type Session struct {
	Config  *config.Config
	Aliases *Aliases
	Jobs    *jobs.Table
	Builder *subproc.Builder
	Runner  *pipeline.Runner

	mu  sync.Mutex
	env map[string]string

	log logger.Logger
}

// Option adjusts session construction.
type Option func(*Session)

// WithStdio replaces the session's terminal files. Tests wire pipes here.
func WithStdio(in, out, errf *os.File) Option {
	return func(s *Session) {
		s.Runner.Stdin = in
		s.Runner.Stdout = out
		s.Runner.Stderr = errf
		s.Jobs.Terminal = nil
		if in != nil && capture.IsTerminal(in) {
			s.Jobs.Terminal = in
		}
	}
}

// WithInteractive forces the interactivity decision instead of probing
// the stdio files.
func WithInteractive(interactive bool) Option {
	return func(s *Session) {
		s.Runner.Interactive = interactive
	}
}

// WithLogger replaces the session logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithEnv replaces the initial environment instead of snapshotting the
// process environment.
func WithEnv(env map[string]string) Option {
	return func(s *Session) {
		s.env = env
	}
}

// New builds a session from a loaded configuration: alias registry with
// the built-in job-control callables, job table bound to the controlling
// terminal, spec builder and pipeline runner sharing the config knobs.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	logOpts := []logger.Option{logger.WithFormat(cfg.Global.LogFormat)}
	if cfg.Global.Debug {
		logOpts = append(logOpts, logger.WithDebug())
	}

	s := &Session{
		Config:  cfg,
		Aliases: NewAliases(),
		Jobs:    jobs.NewTable(),
		env:     environMap(),
		log:     logger.NewLogger(logOpts...),
	}
	s.Jobs.AutoContinue = cfg.Jobs.AutoContinue
	s.Builder = &subproc.Builder{
		Aliases:   s.Aliases,
		Resolver:  subproc.NewResolver(),
		Predictor: subproc.NewPredictor(cfg.Exec.Unthreadable, cfg.Exec.Uncapturable),
	}
	s.Runner = &pipeline.Runner{
		Launcher:    subproc.NewLauncher(cfg.Exec.PollInterval),
		Jobs:        s.Jobs,
		Exec:        cfg.Exec,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: capture.IsTerminal(os.Stdin) && capture.IsTerminal(os.Stdout),
	}
	if capture.IsTerminal(os.Stdin) {
		s.Jobs.Terminal = os.Stdin
	}

	for _, opt := range opts {
		opt(s)
	}

	registerBuiltins(s)
	if cfg.Paths.AliasFile != "" {
		if err := s.Aliases.LoadFile(cfg.Paths.AliasFile); err != nil {
			return nil, fmt.Errorf("loading aliases: %w", err)
		}
	}
	return s, nil
}

// Context returns ctx with the session logger attached, so every engine
// layer below logs through it.
func (s *Session) Context(ctx context.Context) context.Context {
	return logger.WithLogger(ctx, s.log)
}

// Stage is one unbuilt pipeline stage: its token list and optional env
// deltas merged over the session snapshot at build time.
type Stage struct {
	Tokens []string
	Env    map[string]string
}

// BuildPipeline builds specs for each stage and assembles them into a
// pipeline. The capture mode lands on the final stage; the environment
// snapshot is taken here, once, for the whole pipeline.
func (s *Session) BuildPipeline(stages []Stage, mode capture.Mode, background bool) (*pipeline.Pipeline, error) {
	env := s.Snapshot()
	specs := make([]*subproc.Spec, 0, len(stages))
	for i, stage := range stages {
		stageMode := capture.Uncaptured
		if i == len(stages)-1 {
			stageMode = mode
		}
		sp, err := s.Builder.Build(stage.Tokens, stageMode, env, stage.Env)
		if err != nil {
			return nil, err
		}
		specs = append(specs, sp)
	}
	return pipeline.New(specs, mode, background)
}

// Run executes a chain of pipelines.
func (s *Session) Run(ctx context.Context, c *pipeline.Chain) (*pipeline.Result, error) {
	return s.Runner.RunChain(s.Context(ctx), c)
}

// RunCommand builds and runs a single foreground command, the common case
// for embedding callers.
func (s *Session) RunCommand(ctx context.Context, tokens []string, mode capture.Mode) (*pipeline.Result, error) {
	p, err := s.BuildPipeline([]Stage{{Tokens: tokens}}, mode, false)
	if err != nil {
		return nil, err
	}
	return s.Runner.Run(s.Context(ctx), p)
}

// Notify reports background jobs that finished since the last call, the
// way an interactive shell does between prompts.
func (s *Session) Notify(ctx context.Context) {
	for _, info := range s.Jobs.Reap() {
		logger.Write(s.Context(ctx), info.Format())
	}
}

// Close hangs up every surviving job and releases the session. Disowned
// jobs are no longer in the table and keep running.
func (s *Session) Close(ctx context.Context) {
	s.Jobs.HupAll(s.Context(ctx))
}
