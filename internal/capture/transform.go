package capture

import (
	"regexp"

	"golang.org/x/text/transform"
)

// newlineNormalizer folds CRLF pairs to LF so captured text is stable
// across producers that write DOS line endings (ptys among them).
type newlineNormalizer struct{}

var _ transform.Transformer = newlineNormalizer{}

func (newlineNormalizer) Reset() {}

func (newlineNormalizer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if c == '\r' {
			if nSrc == len(src)-1 {
				if !atEOF {
					// Cannot tell yet whether a LF follows.
					err = transform.ErrShortSrc
					return
				}
				// Trailing CR at EOF passes through.
			} else if src[nSrc+1] == '\n' {
				if nDst == len(dst) {
					err = transform.ErrShortDst
					return
				}
				dst[nDst] = '\n'
				nDst++
				nSrc += 2
				continue
			}
		}
		if nDst == len(dst) {
			err = transform.ErrShortDst
			return
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return
}

// NewlineNormalizer returns a streaming CRLF to LF transformer.
func NewlineNormalizer() transform.Transformer {
	return newlineNormalizer{}
}

// NormalizeNewlines folds CRLF pairs in a byte slice.
func NormalizeNewlines(b []byte) []byte {
	out, _, err := transform.Bytes(newlineNormalizer{}, b)
	if err != nil {
		return b
	}
	return out
}

var (
	reColor  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	reHidden = regexp.MustCompile(`\x01[^\x02]*\x02`)
)

// Scrub removes coloring escape sequences and hidden prompt markers from a
// captured chunk. The terminal passthrough keeps the raw bytes; only the
// buffer copy is scrubbed.
func Scrub(b []byte) []byte {
	b = reHidden.ReplaceAll(b, nil)
	return reColor.ReplaceAll(b, nil)
}
