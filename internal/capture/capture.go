package capture

// Mode selects how a pipeline's output is collected. The zero value runs
// the pipeline with no capture and no result object.
type Mode int

const (
	// Uncaptured runs the pipeline for its side effects only ($[] form).
	Uncaptured Mode = iota
	// Hidden runs uncaptured but still produces a result object (![] form).
	Hidden
	// Text captures stdout and returns it as decoded text ($() form).
	Text
	// Object captures stdout and stderr into a result object (!() form).
	Object
)

func (m Mode) String() string {
	switch m {
	case Uncaptured:
		return "uncaptured"
	case Hidden:
		return "hidden"
	case Text:
		return "text"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// CapturesStdout reports whether the last stage's stdout is redirected into
// a capture buffer instead of the terminal.
func (m Mode) CapturesStdout() bool {
	return m == Text || m == Object
}

// CapturesStderr reports whether stderr is captured. Only full object
// capture takes stderr; text capture lets it flow to the terminal.
func (m Mode) CapturesStderr() bool {
	return m == Object
}

// ReturnsResult reports whether the run hands back a result object.
func (m Mode) ReturnsResult() bool {
	return m == Object || m == Hidden
}
