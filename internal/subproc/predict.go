package subproc

import (
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Predictor classifies external commands by name. Interactive and
// full-screen programs must not run on worker goroutines and must not have
// their output captured; the pattern lists come from configuration.
type Predictor struct {
	unthreadable []string
	uncapturable []string
}

func NewPredictor(unthreadable, uncapturable []string) *Predictor {
	return &Predictor{
		unthreadable: unthreadable,
		uncapturable: uncapturable,
	}
}

// Threadable reports whether the command may run on a worker goroutine.
func (p *Predictor) Threadable(name string) bool {
	return !matchAny(p.unthreadable, name)
}

// Capturable reports whether the command's output may be captured.
func (p *Predictor) Capturable(name string) bool {
	return !matchAny(p.uncapturable, name)
}

// matchAny matches the command basename against glob patterns, so both
// "vim" and "/usr/bin/vim" hit a "vim" entry and "*top" covers htop.
func matchAny(patterns []string, name string) bool {
	base := filepath.Base(name)
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, base); err == nil && ok {
			return true
		}
	}
	return false
}
