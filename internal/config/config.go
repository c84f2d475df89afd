package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved engine configuration. It is built from a
// Definition by the Loader and is read-only afterwards.
type Config struct {
	Global Global
	Exec   Exec
	Jobs   Jobs
	Paths  Paths

	// Warnings collected while resolving the configuration.
	Warnings []string
}

// Global holds settings that apply to the process as a whole.
type Global struct {
	Debug     bool
	LogFormat string
	// ConfigPath is the configuration file actually used, if any.
	ConfigPath string
}

// Exec controls how pipelines run and capture output.
type Exec struct {
	// CaptureAlways tees uncaptured foreground output of threadable
	// pipelines into the result buffer as well as the terminal.
	CaptureAlways bool
	// StoreStdout makes uncaptured runs retain their output on the result.
	StoreStdout bool
	// RaiseOnError returns an error for nonzero exit once a pipeline ends.
	RaiseOnError bool
	// PollInterval is the base sleep of the foreground wait/tee loop.
	PollInterval time.Duration
	// PtyReadDelay postpones the first read from a fresh pty master.
	// Zero disables the delay.
	PtyReadDelay time.Duration
	// Unthreadable lists command-name patterns that must run on the
	// launching thread (interactive/TTY programs).
	Unthreadable []string
	// Uncapturable lists command-name patterns whose output must never be
	// captured (full-screen programs).
	Uncapturable []string
}

// Jobs controls job-table behavior.
type Jobs struct {
	// AutoContinue sends SIGCONT to a job when it is disowned.
	AutoContinue bool
}

// Paths holds file locations resolved at load time.
type Paths struct {
	// AliasFile is an optional YAML file of name -> argv expansions.
	AliasFile string
}

func (c *Config) validate() error {
	if c.Global.LogFormat != "text" && c.Global.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %q", c.Global.LogFormat)
	}
	if c.Exec.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Exec.PollInterval)
	}
	if c.Exec.PtyReadDelay < 0 {
		return fmt.Errorf("invalid pty read delay: %s", c.Exec.PtyReadDelay)
	}
	return nil
}
