//go:build !windows
// +build !windows

package subproc

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsh-org/subsh/internal/capture"
)

func buildSpec(t *testing.T, b *Builder, tokens []string, mode capture.Mode) *Spec {
	t.Helper()
	sp, err := b.Build(tokens, mode, nil, nil)
	require.NoError(t, err)
	return sp
}

func TestLauncherExternal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	launcher := NewLauncher(time.Millisecond)
	b := &Builder{Resolver: NewResolver()}

	t.Run("captures stdout through a pipe", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		sp := buildSpec(t, b, []string{"echo", "hello"}, capture.Uncaptured)
		h, err := launcher.Start(ctx, sp, StdIO{Out: pw, Owned: []*os.File{pw}}, 0)
		require.NoError(t, err)
		assert.NotZero(t, h.Pid())

		data, err := io.ReadAll(pr)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(data))

		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.Code)
		assert.False(t, st.Stopped)
	})

	t.Run("reports the exit code", func(t *testing.T) {
		t.Parallel()
		sp := buildSpec(t, b, []string{"sh", "-c", "exit 3"}, capture.Uncaptured)
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, st.Code)
	})

	t.Run("signal death reports a negative code", func(t *testing.T) {
		t.Parallel()
		sp := buildSpec(t, b, []string{"sleep", "30"}, capture.Uncaptured)
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		require.NoError(t, h.Signal(syscall.SIGKILL))
		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, -int(syscall.SIGKILL), st.Code)
	})

	t.Run("trywait polls without blocking", func(t *testing.T) {
		t.Parallel()
		sp := buildSpec(t, b, []string{"sleep", "0.3"}, capture.Uncaptured)
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)

		_, ok := h.TryWait()
		assert.False(t, ok, "still running")

		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.Code)

		st, ok = h.TryWait()
		assert.True(t, ok)
		assert.Equal(t, 0, st.Code)
	})

	t.Run("wait again after exit returns the stored status", func(t *testing.T) {
		t.Parallel()
		sp := buildSpec(t, b, []string{"sh", "-c", "exit 7"}, capture.Uncaptured)
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		st, err := h.Wait(ctx)
		require.NoError(t, err)
		require.Equal(t, 7, st.Code)
		st, err = h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, st.Code)
	})
}

func TestLauncherProxy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	launcher := NewLauncher(time.Millisecond)

	t.Run("threadable callable runs off-thread", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		started := make(chan struct{})
		sp := &Spec{
			Args: []string{"greet", "world"},
			Kind: ThreadableCallable,
			Fn: func(_ context.Context, call *Call) error {
				close(started)
				fmt.Fprintf(call.Stdout, "hello %s\n", call.Args[0])
				return nil
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{Out: pw, Owned: []*os.File{pw}}, 0)
		require.NoError(t, err)
		assert.Zero(t, h.Pid())

		<-started
		data, err := io.ReadAll(pr)
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", string(data))

		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.Code)
	})

	t.Run("unthreadable callable blocks the launch", func(t *testing.T) {
		t.Parallel()
		ran := false
		sp := &Spec{
			Args: []string{"inline"},
			Kind: UnthreadableCallable,
			Fn: func(_ context.Context, _ *Call) error {
				ran = true
				return nil
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		assert.True(t, ran, "inline callable must finish before Start returns")
		st, ok := h.TryWait()
		require.True(t, ok)
		assert.Equal(t, 0, st.Code)
	})

	t.Run("threadable exec block runs off-thread", func(t *testing.T) {
		t.Parallel()
		release := make(chan struct{})
		sp := &Spec{
			Args:       []string{"block"},
			Kind:       ExecBlock,
			Threadable: true,
			Fn: func(_ context.Context, _ *Call) error {
				<-release
				return nil
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		_, ok := h.TryWait()
		assert.False(t, ok, "the block is still running after Start")

		close(release)
		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.Code)
	})

	t.Run("unthreadable exec block blocks the launch", func(t *testing.T) {
		t.Parallel()
		ran := false
		sp := &Spec{
			Args:       []string{"block"},
			Kind:       ExecBlock,
			Threadable: false,
			Fn: func(_ context.Context, _ *Call) error {
				ran = true
				return nil
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		assert.True(t, ran, "unthreadable exec block must finish before Start returns")
		st, ok := h.TryWait()
		require.True(t, ok)
		assert.Equal(t, 0, st.Code)
	})

	t.Run("inline callable sees the caller's context", func(t *testing.T) {
		t.Parallel()
		cctx, cancel := context.WithCancel(context.Background())
		cancel()

		sawCancel := false
		sp := &Spec{
			Args: []string{"inline"},
			Kind: UnthreadableCallable,
			Fn: func(ctx context.Context, _ *Call) error {
				sawCancel = ctx.Err() != nil
				return nil
			},
		}
		_, err := launcher.Start(cctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		assert.True(t, sawCancel, "cancellation must reach the inline callable")
	})

	t.Run("error carries the exit code", func(t *testing.T) {
		t.Parallel()
		sp := &Spec{
			Args: []string{"fail"},
			Kind: ThreadableCallable,
			Fn: func(_ context.Context, _ *Call) error {
				return NewExitError(42)
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{}, 0)
		require.NoError(t, err)
		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, st.Code)
	})

	t.Run("plain error prints on stderr and exits 1", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		sp := &Spec{
			Args: []string{"boom"},
			Kind: ThreadableCallable,
			Fn: func(_ context.Context, _ *Call) error {
				return fmt.Errorf("it broke")
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{Err: pw, Owned: []*os.File{pw}}, 0)
		require.NoError(t, err)

		data, err := io.ReadAll(pr)
		require.NoError(t, err)
		assert.Equal(t, "boom: it broke\n", string(data))

		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Code)
	})

	t.Run("callable reads wired stdin", func(t *testing.T) {
		t.Parallel()
		inR, inW, err := os.Pipe()
		require.NoError(t, err)
		outR, outW, err := os.Pipe()
		require.NoError(t, err)

		sp := &Spec{
			Args: []string{"upper"},
			Kind: ThreadableCallable,
			Fn: func(_ context.Context, call *Call) error {
				data, err := io.ReadAll(call.Stdin)
				if err != nil {
					return err
				}
				_, err = call.Stdout.Write([]byte("got:" + string(data)))
				return err
			},
		}
		h, err := launcher.Start(ctx, sp, StdIO{In: inR, Out: outW, Owned: []*os.File{inR, outW}}, 0)
		require.NoError(t, err)

		_, err = inW.Write([]byte("abc"))
		require.NoError(t, err)
		require.NoError(t, inW.Close())

		data, err := io.ReadAll(outR)
		require.NoError(t, err)
		assert.Equal(t, "got:abc", string(data))

		st, err := h.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, st.Code)
	})
}
