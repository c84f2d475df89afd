package capture

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDrain(t *testing.T) {
	t.Parallel()

	t.Run("collects until EOF", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		s := NewStream()
		go s.Drain(pr)

		_, err = pw.Write([]byte("one\ntwo\n"))
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		s.Wait()
		assert.Equal(t, "one\ntwo\n", s.String())
		assert.Equal(t, []string{"one", "two"}, s.Lines())
		assert.True(t, s.Done())
	})

	t.Run("normalizes CRLF", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		s := NewStream()
		go s.Drain(pr)

		_, err = pw.Write([]byte("a\r\nb\r\n"))
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		s.Wait()
		assert.Equal(t, "a\nb\n", s.String())
	})

	t.Run("finish without a producer unblocks waiters", func(t *testing.T) {
		t.Parallel()
		s := NewStream()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Wait()
		}()
		s.Finish()
		wg.Wait()
		assert.Empty(t, s.String())
		assert.Nil(t, s.Lines())
	})
}

func TestStreamTee(t *testing.T) {
	t.Parallel()

	t.Run("forwards and captures", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		var terminal lockedBuffer
		s := NewStream()
		go s.Tee(pr, &terminal, TeeOptions{Capture: true})

		_, err = pw.Write([]byte("live output\n"))
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		s.Wait()
		assert.Equal(t, "live output\n", terminal.String())
		assert.Equal(t, "live output\n", s.String())
	})

	t.Run("scrubs color from the buffer only", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		var terminal lockedBuffer
		s := NewStream()
		go s.Tee(pr, &terminal, TeeOptions{Capture: true})

		_, err = pw.Write([]byte("\x1b[31mred\x1b[0m\n"))
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		s.Wait()
		assert.Equal(t, "\x1b[31mred\x1b[0m\n", terminal.String(), "terminal keeps raw bytes")
		assert.Equal(t, "red\n", s.String(), "buffer is scrubbed")
	})

	t.Run("alternate screen content passes through uncaptured", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		var terminal lockedBuffer
		s := NewStream()
		go s.Tee(pr, &terminal, TeeOptions{Capture: true})

		_, err = pw.Write([]byte("before\n\x1b[?1049hfullscreen\x1b[?1049lafter\n"))
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		s.Wait()
		assert.Contains(t, terminal.String(), "fullscreen")
		assert.Equal(t, "before\nafter\n", s.String())
	})

	t.Run("delay postpones the first read", func(t *testing.T) {
		t.Parallel()
		pr, pw, err := os.Pipe()
		require.NoError(t, err)

		s := NewStream()
		start := time.Now()
		go s.Tee(pr, io.Discard, TeeOptions{Delay: 50 * time.Millisecond, Capture: true})

		_, err = pw.Write([]byte("x"))
		require.NoError(t, err)
		require.NoError(t, pw.Close())

		s.Wait()
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Equal(t, "x", s.String())
	})
}

func TestFilterAlternateScreen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		chunk    string
		alt      bool
		wantKept string
		wantAlt  bool
	}{
		{"plain text", "hello", false, "hello", false},
		{"enters alt mode", "a\x1b[?47hb", false, "a", true},
		{"leaves alt mode", "hidden\x1b[?47lshown", true, "shown", false},
		{"already alt, stays", "all hidden", true, "", true},
		{"round trip in one chunk", "a\x1b[?1047hx\x1b[?1047lb", false, "ab", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			kept, alt := filterAlternateScreen([]byte(tc.chunk), tc.alt)
			assert.Equal(t, tc.wantKept, string(kept))
			assert.Equal(t, tc.wantAlt, alt)
		})
	}
}

// lockedBuffer is a bytes.Buffer safe for the tee goroutine to write
// while the test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
