package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSink(t *testing.T) {
	t.Parallel()

	t.Run("structured records reach the writer", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		lg := NewLogger(WithQuiet(), WithWriter(&buf))

		lg.Info("pipeline started", "cmd", "echo hi")
		assert.Contains(t, buf.String(), "pipeline started")
		assert.Contains(t, buf.String(), "echo hi")
	})

	t.Run("json format", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		lg := NewLogger(WithQuiet(), WithWriter(&buf), WithFormat("json"))

		lg.Warnf("exit %d", 3)
		assert.Contains(t, buf.String(), `"msg":"exit 3"`)
		assert.Contains(t, buf.String(), `"level":"WARN"`)
	})

	t.Run("debug gated by level", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		lg := NewLogger(WithQuiet(), WithWriter(&buf))
		lg.Debug("hidden")
		assert.Empty(t, buf.String())

		lg = NewLogger(WithQuiet(), WithWriter(&buf), WithDebug())
		lg.Debug("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("with attrs carries through", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		lg := NewLogger(WithQuiet(), WithWriter(&buf)).With("job", 1)
		lg.Info("state change")
		assert.Contains(t, buf.String(), "job=1")
	})

	t.Run("free-form write is unformatted", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		lg := NewLogger(WithQuiet(), WithWriter(&buf))
		lg.Write("[1]+ running: sleep 5 & (1234)")
		assert.Equal(t, "[1]+ running: sleep 5 & (1234)\n", buf.String())
	})
}

func TestContextCarrier(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		lg := NewLogger(WithQuiet(), WithWriter(&buf))
		ctx := WithLogger(context.Background(), lg)

		require.Same(t, lg, FromContext(ctx))
		Info(ctx, "through context")
		assert.Contains(t, buf.String(), "through context")
	})

	t.Run("fixed logger wins", func(t *testing.T) {
		t.Parallel()
		var fixed, plain bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(WithQuiet(), WithWriter(&plain)))
		ctx = WithFixedLogger(ctx, NewLogger(WithQuiet(), WithWriter(&fixed)))

		Write(ctx, "hello")
		assert.Equal(t, "hello\n", fixed.String())
		assert.Empty(t, plain.String())
	})

	t.Run("bare context falls back to default", func(t *testing.T) {
		t.Parallel()
		assert.NotNil(t, FromContext(context.Background()))
	})
}
