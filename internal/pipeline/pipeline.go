package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/subsh-org/subsh/internal/capture"
	"github.com/subsh-org/subsh/internal/subproc"
)

// Pipeline is an ordered sequence of stages joined by pipes. The last
// stage is the only one whose output feeds the capture adapter.
type Pipeline struct {
	Stages     []*subproc.Spec
	Background bool
	Capture    capture.Mode
}

var errNoStages = errors.New("pipeline has no stages")

// New assembles a pipeline from built specs: stage indices are assigned,
// exactly the final spec is marked last-in-pipeline and the pipeline's
// capture mode is stamped onto it. Specs carrying a stale last marker
// from a previous assembly are rejected.
func New(stages []*subproc.Spec, mode capture.Mode, background bool) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, errNoStages
	}
	for i, sp := range stages {
		if sp.LastInPipeline && i != len(stages)-1 {
			return nil, fmt.Errorf("stage %d (%s) already marked last in pipeline", i, sp.Args[0])
		}
		sp.Index = i
		sp.LastInPipeline = false
		sp.Background = background
		sp.Capture = capture.Uncaptured
	}
	last := stages[len(stages)-1]
	last.LastInPipeline = true
	last.Capture = mode
	return &Pipeline{
		Stages:     stages,
		Background: background,
		Capture:    mode,
	}, nil
}

// Last returns the capture-feeding stage.
func (p *Pipeline) Last() *subproc.Spec {
	return p.Stages[len(p.Stages)-1]
}

// String renders the pipeline roughly the way it was typed.
func (p *Pipeline) String() string {
	parts := lo.Map(p.Stages, func(sp *subproc.Spec, _ int) string {
		return sp.String()
	})
	s := strings.Join(parts, " | ")
	if p.Background {
		s += " &"
	}
	return s
}

// Connector gates a pipeline on the outcome of the one before it in a
// chain.
type Connector int

const (
	// Unconditional runs regardless of the previous exit status.
	Unconditional Connector = iota
	// And runs only after a zero exit.
	And
	// Or runs only after a nonzero exit.
	Or
)

func (c Connector) String() string {
	switch c {
	case And:
		return "&&"
	case Or:
		return "||"
	default:
		return ";"
	}
}

// Chain is a sequence of pipelines run strictly in order. Each link's
// connector relates it to the pipeline before it; the first link's
// connector is ignored.
type Chain struct {
	Links []Link
}

type Link struct {
	Pipeline *Pipeline
	Op       Connector
}
