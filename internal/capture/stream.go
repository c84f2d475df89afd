package capture

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/transform"
)

// Stream collects one output stream of a pipeline. A single goroutine owns
// the read side; consumers block on Wait before reading the buffer.
type Stream struct {
	mu  sync.Mutex
	buf bytes.Buffer

	done     chan struct{}
	doneOnce sync.Once
}

func NewStream() *Stream {
	return &Stream{done: make(chan struct{})}
}

// Write appends directly to the buffer. Used when a stage's output is
// collected without an intermediate pipe.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

// Drain copies r into the buffer through the newline normalizer until EOF,
// then closes r and marks the stream complete. Run it on its own goroutine.
func (s *Stream) Drain(r io.ReadCloser) {
	defer s.finish()
	defer func() { _ = r.Close() }()
	nr := transform.NewReader(readerOrEOF{r}, NewlineNormalizer())
	buf := make([]byte, 4096)
	for {
		n, err := nr.Read(buf)
		if n > 0 {
			_, _ = s.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// TeeOptions adjust the tee loop.
type TeeOptions struct {
	// Delay postpones the first read, giving slow writers a head start.
	Delay time.Duration
	// Capture keeps a buffer copy; when false the loop only forwards.
	Capture bool
}

// Tee forwards raw bytes from r to w while appending a scrubbed, normalized
// copy to the buffer. Content written while the producer has switched the
// terminal into the alternate screen is forwarded but not captured. Run it
// on its own goroutine; it owns r until EOF.
func (s *Stream) Tee(r io.ReadCloser, w io.Writer, opts TeeOptions) {
	defer s.finish()
	defer func() { _ = r.Close() }()
	if opts.Delay > 0 {
		time.Sleep(opts.Delay)
	}
	altMode := false
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if w != nil {
				_, _ = w.Write(chunk)
			}
			if opts.Capture {
				kept, nowAlt := filterAlternateScreen(chunk, altMode)
				altMode = nowAlt
				if len(kept) > 0 {
					_, _ = s.Write(NormalizeNewlines(Scrub(kept)))
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Finish marks the stream complete without draining. Wiring calls it when
// no producer feeds the stream so waiters do not block.
func (s *Stream) Finish() {
	s.finish()
}

// Wait blocks until the owning drain or tee loop has seen EOF.
func (s *Stream) Wait() {
	<-s.done
}

// Done reports completion without blocking.
func (s *Stream) Done() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Stream) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, s.buf.Len())
	copy(b, s.buf.Bytes())
	return b
}

func (s *Stream) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Lines splits the collected text on LF, dropping a trailing empty line.
func (s *Stream) Lines() []string {
	text := s.String()
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// readerOrEOF folds pty master read errors into EOF. Once the slave side
// closes, Linux reports EIO on the master; for capture purposes that is
// end of stream, not a failure.
type readerOrEOF struct {
	r io.Reader
}

func (p readerOrEOF) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil && err != io.EOF {
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	return n, err
}

// Alternate screen switch sequences (xterm 1049, 47 and 1047 modes).
var (
	altStarts = [][]byte{
		[]byte("\x1b[?1049h"), []byte("\x1b[?47h"), []byte("\x1b[?1047h"),
	}
	altEnds = [][]byte{
		[]byte("\x1b[?1049l"), []byte("\x1b[?47l"), []byte("\x1b[?1047l"),
	}
)

// filterAlternateScreen drops the portions of chunk written while the
// alternate screen is active and reports the resulting mode. Switch
// sequences split across chunks are not recognized, matching the original
// chunk-at-a-time scan.
func filterAlternateScreen(chunk []byte, alt bool) ([]byte, bool) {
	var kept []byte
	rest := chunk
	for len(rest) > 0 {
		if alt {
			idx, flag := findFirst(rest, altEnds)
			if flag < 0 {
				return kept, true
			}
			rest = rest[idx+len(altEnds[flag]):]
			alt = false
			continue
		}
		idx, flag := findFirst(rest, altStarts)
		if flag < 0 {
			kept = append(kept, rest...)
			return kept, false
		}
		kept = append(kept, rest[:idx]...)
		rest = rest[idx+len(altStarts[flag]):]
		alt = true
	}
	return kept, alt
}

func findFirst(b []byte, pats [][]byte) (int, int) {
	best, which := -1, -1
	for i, p := range pats {
		if idx := bytes.Index(b, p); idx >= 0 && (best < 0 || idx < best) {
			best, which = idx, i
		}
	}
	return best, which
}
