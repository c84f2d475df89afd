//go:build !windows

package shell_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsh-org/subsh/internal/capture"
	"github.com/subsh-org/subsh/internal/config"
	"github.com/subsh-org/subsh/internal/shell"
	"github.com/subsh-org/subsh/internal/subproc"
	"github.com/subsh-org/subsh/internal/test"
)

func TestRunCommandExternal(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	res, err := h.Session.RunCommand(h.Context, []string{"echo", "hello"}, capture.Text)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rtn())
	assert.Equal(t, "hello\n", res.Out())
}

func TestCallableLastStage(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	h.Session.Aliases.SetFunc("greet", func(_ context.Context, call *subproc.Call) error {
		name := "world"
		if len(call.Args) > 0 {
			name = call.Args[0]
		}
		fmt.Fprintf(call.Stdout, "hello %s\n", name)
		return nil
	})

	res, err := h.Session.RunCommand(h.Context, []string{"greet", "subsh"}, capture.Text)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rtn())
	assert.Equal(t, "hello subsh\n", res.Out())
	assert.Equal(t, 0, res.Pid(), "an in-process stage has no OS pid")
}

func TestCallableExitCode(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	h.Session.Aliases.SetFunc("failquiet", func(context.Context, *subproc.Call) error {
		return subproc.NewExitError(3)
	})
	res, err := h.Session.RunCommand(h.Context, []string{"failquiet"}, capture.Object)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rtn())
	assert.Empty(t, res.Err(), "a bare exit code carries no message")
}

func TestCallableErrorMessage(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	h.Session.Aliases.SetFunc("broken", func(context.Context, *subproc.Call) error {
		return fmt.Errorf("it broke")
	})
	res, err := h.Session.RunCommand(h.Context, []string{"broken"}, capture.Object)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rtn())
	assert.Equal(t, "broken: it broke\n", res.Err())
}

func TestExpansionAlias(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	h.Session.Aliases.SetExpansion("shout", []string{"echo", "LOUD"})
	res, err := h.Session.RunCommand(h.Context, []string{"shout", "noise"}, capture.Text)
	require.NoError(t, err)
	assert.Equal(t, "LOUD noise\n", res.Out())
}

func TestEnvSnapshot(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	h.Session.Setenv("SUBSH_TEST_FOO", "bar")
	res, err := h.Session.RunCommand(h.Context, []string{"sh", "-c", "echo $SUBSH_TEST_FOO"}, capture.Text)
	require.NoError(t, err)
	assert.Equal(t, "bar\n", res.Out())

	h.Session.Unsetenv("SUBSH_TEST_FOO")
	_, ok := h.Session.Getenv("SUBSH_TEST_FOO")
	assert.False(t, ok)
}

func TestStageEnvOverride(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	p, err := h.Session.BuildPipeline([]shell.Stage{
		{Tokens: []string{"sh", "-c", "echo $ONLY_HERE"}, Env: map[string]string{"ONLY_HERE": "yes"}},
	}, capture.Text, false)
	require.NoError(t, err)

	res, err := h.Session.Runner.Run(h.Context, p)
	require.NoError(t, err)
	assert.Equal(t, "yes\n", res.Out())

	_, ok := h.Session.Getenv("ONLY_HERE")
	assert.False(t, ok, "stage deltas never leak into the session")
}

func TestJsonqPipeline(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	p, err := h.Session.BuildPipeline([]shell.Stage{
		{Tokens: []string{"echo", `{"name":"subsh","n":2}`}},
		{Tokens: []string{"jsonq", ".name"}},
	}, capture.Text, false)
	require.NoError(t, err)

	res, err := h.Session.Runner.Run(h.Context, p)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rtn())
	assert.Equal(t, "\"subsh\"\n", res.Out())
}

func TestJsonqErrors(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	t.Run("bad query", func(t *testing.T) {
		p, err := h.Session.BuildPipeline([]shell.Stage{
			{Tokens: []string{"echo", "{}"}},
			{Tokens: []string{"jsonq", ".["}},
		}, capture.Object, false)
		require.NoError(t, err)
		res, err := h.Session.Runner.Run(h.Context, p)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Rtn())
		assert.Contains(t, res.Err(), "jsonq:")
	})

	t.Run("bad json", func(t *testing.T) {
		p, err := h.Session.BuildPipeline([]shell.Stage{
			{Tokens: []string{"echo", "not json"}},
			{Tokens: []string{"jsonq", "."}},
		}, capture.Object, false)
		require.NoError(t, err)
		res, err := h.Session.Runner.Run(h.Context, p)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Rtn())
	})
}

func TestJobsBuiltin(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	bg, err := h.Session.BuildPipeline([]shell.Stage{{Tokens: []string{"sleep", "5"}}}, capture.Hidden, true)
	require.NoError(t, err)
	bgRes, err := h.Session.Runner.Run(h.Context, bg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = syscall.Kill(-bgRes.Pid(), syscall.SIGKILL)
	})

	res, err := h.Session.RunCommand(h.Context, []string{"jobs"}, capture.Text)
	require.NoError(t, err)
	assert.Contains(t, res.Out(), "running: sleep 5 &")
	assert.Contains(t, res.Out(), "[1]")

	res, err = h.Session.RunCommand(h.Context, []string{"jobs", "-l"}, capture.Text)
	require.NoError(t, err)
	assert.Contains(t, res.Out(), "COMMAND")
	assert.Contains(t, res.Out(), "sleep 5")

	res, err = h.Session.RunCommand(h.Context, []string{"jobs", "--bogus"}, capture.Object)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rtn())
	assert.Contains(t, res.Err(), "unknown option")
}

func TestJobsOwnPipelineHidden(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	res, err := h.Session.RunCommand(h.Context, []string{"jobs"}, capture.Text)
	require.NoError(t, err)
	assert.Empty(t, res.Out(), "a jobs invocation never lists its own pipeline")
}

func TestKillBuiltinJob(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	bg, err := h.Session.BuildPipeline([]shell.Stage{{Tokens: []string{"sleep", "5"}}}, capture.Hidden, true)
	require.NoError(t, err)
	bgRes, err := h.Session.Runner.Run(h.Context, bg)
	require.NoError(t, err)
	pid := bgRes.Pid()
	t.Cleanup(func() {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	})

	res, err := h.Session.RunCommand(h.Context, []string{"kill", "-TERM", "%1"}, capture.Hidden)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rtn())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.Session.Notify(h.Context)
		if len(h.Session.Jobs.List()) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("kill -TERM did not terminate the job")
}

func TestKillBuiltinList(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	res, err := h.Session.RunCommand(h.Context, []string{"kill", "-l"}, capture.Text)
	require.NoError(t, err)
	assert.Contains(t, res.Out(), "SIGTERM")
	assert.Contains(t, res.Out(), "SIGKILL")

	res, err = h.Session.RunCommand(h.Context, []string{"kill", "-l", "TERM"}, capture.Text)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\n", int(syscall.SIGTERM)), res.Out())
}

func TestKillBuiltinErrors(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	t.Run("unknown signal", func(t *testing.T) {
		res, err := h.Session.RunCommand(h.Context, []string{"kill", "-WAT", "1"}, capture.Object)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Rtn())
		assert.Contains(t, res.Err(), "unknown signal")
	})

	t.Run("no target", func(t *testing.T) {
		res, err := h.Session.RunCommand(h.Context, []string{"kill"}, capture.Object)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Rtn())
		assert.Contains(t, res.Err(), "usage:")
	})

	t.Run("garbage target", func(t *testing.T) {
		res, err := h.Session.RunCommand(h.Context, []string{"kill", "nope"}, capture.Object)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Rtn())
		assert.Contains(t, res.Err(), "no such job or pid")
	})
}

func TestDisownBuiltin(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	bg, err := h.Session.BuildPipeline([]shell.Stage{{Tokens: []string{"sleep", "5"}}}, capture.Hidden, true)
	require.NoError(t, err)
	bgRes, err := h.Session.Runner.Run(h.Context, bg)
	require.NoError(t, err)
	pid := bgRes.Pid()
	t.Cleanup(func() {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	})

	res, err := h.Session.RunCommand(h.Context, []string{"disown"}, capture.Hidden)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rtn())
	assert.Empty(t, h.Session.Jobs.List())

	// The process survives both the disown and the session teardown.
	h.Session.Close(h.Context)
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, syscall.Kill(pid, 0))
}

func TestFgNoJobs(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	res, err := h.Session.RunCommand(h.Context, []string{"fg"}, capture.Object)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rtn())
	assert.Contains(t, res.Err(), "fg: no such job")
}

func TestBgNoJobs(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	res, err := h.Session.RunCommand(h.Context, []string{"bg"}, capture.Object)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rtn())
	assert.Contains(t, res.Err(), "bg: no such job")
}

func TestAliasFileLoadedAtStartup(t *testing.T) {
	t.Parallel()

	aliasPath := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(aliasPath, []byte("shout: echo LOUD\n"), 0600))

	h := test.Setup(t, func(cfg *config.Config) {
		cfg.Paths.AliasFile = aliasPath
	})
	res, err := h.Session.RunCommand(h.Context, []string{"shout"}, capture.Text)
	require.NoError(t, err)
	assert.Equal(t, "LOUD\n", res.Out())
}

func TestNotify(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	bg, err := h.Session.BuildPipeline([]shell.Stage{{Tokens: []string{"true"}}}, capture.Hidden, true)
	require.NoError(t, err)
	res, err := h.Session.Runner.Run(h.Context, bg)
	require.NoError(t, err)

	_, err = res.Wait(h.Context)
	require.NoError(t, err)

	require.Len(t, h.Session.Jobs.List(), 1)
	h.Session.Notify(h.Context)
	assert.Empty(t, h.Session.Jobs.List(), "notify reaps finished jobs")
}

func TestCommandNotFound(t *testing.T) {
	t.Parallel()
	h := test.Setup(t)

	_, err := h.Session.RunCommand(h.Context, []string{"definitely-not-a-command-xyz"}, capture.Text)
	require.Error(t, err)
	var nf *subproc.CommandNotFoundError
	assert.ErrorAs(t, err, &nf)
}
