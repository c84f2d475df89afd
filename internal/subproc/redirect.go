package subproc

import (
	"fmt"
	"os"
	"strings"
)

// StreamID names the stdio streams a redirect can touch.
type StreamID int

const (
	Stdin StreamID = iota
	Stdout
	Stderr
	// OutErr targets stdout and stderr together (the &> form).
	OutErr
)

func (s StreamID) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case OutErr:
		return "stdout+stderr"
	default:
		return "unknown"
	}
}

// RedirMode is what a redirect does to its stream.
type RedirMode int

const (
	// Read opens the target for reading into stdin.
	Read RedirMode = iota
	// Write truncates the target and writes the stream to it.
	Write
	// Append appends the stream to the target.
	Append
	// MergeErrToOut points stderr at whatever stdout is (2>&1).
	MergeErrToOut
	// MergeOutToErr points stdout at whatever stderr is (1>&2).
	MergeOutToErr
)

// Redirect is one parsed redirection. Merge modes carry no target.
type Redirect struct {
	Stream StreamID
	Mode   RedirMode
	Target string
}

func (r Redirect) String() string {
	switch r.Mode {
	case Read:
		return "< " + r.Target
	case Write:
		if r.Stream == Stderr {
			return "2> " + r.Target
		}
		if r.Stream == OutErr {
			return "&> " + r.Target
		}
		return "> " + r.Target
	case Append:
		if r.Stream == Stderr {
			return "2>> " + r.Target
		}
		if r.Stream == OutErr {
			return "&>> " + r.Target
		}
		return ">> " + r.Target
	case MergeErrToOut:
		return "2>&1"
	case MergeOutToErr:
		return "1>&2"
	default:
		return "?"
	}
}

// NeedsTarget reports whether the redirect consumes a following token.
func (r Redirect) NeedsTarget() bool {
	return r.Mode == Read || r.Mode == Write || r.Mode == Append
}

// Open opens the redirect target with shell-conventional flags.
func (r Redirect) Open() (*os.File, error) {
	switch r.Mode {
	case Read:
		return os.Open(r.Target)
	case Write:
		return os.OpenFile(r.Target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	case Append:
		return os.OpenFile(r.Target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	default:
		return nil, fmt.Errorf("redirect %s opens no file", r)
	}
}

// RedirectConflictError reports a stream redirected more than once on the
// same stage.
type RedirectConflictError struct {
	Stream StreamID
	Args   []string
}

func (e *RedirectConflictError) Error() string {
	return fmt.Sprintf("multiple redirections for %s in %q", e.Stream, strings.Join(e.Args, " "))
}

// redirOps normalizes operator spellings. Digit, short and named stream
// prefixes are accepted.
var redirOps = map[string]Redirect{
	"<": {Stream: Stdin, Mode: Read},

	">":     {Stream: Stdout, Mode: Write},
	">>":    {Stream: Stdout, Mode: Append},
	"1>":    {Stream: Stdout, Mode: Write},
	"1>>":   {Stream: Stdout, Mode: Append},
	"o>":    {Stream: Stdout, Mode: Write},
	"o>>":   {Stream: Stdout, Mode: Append},
	"out>":  {Stream: Stdout, Mode: Write},
	"out>>": {Stream: Stdout, Mode: Append},

	"2>":    {Stream: Stderr, Mode: Write},
	"2>>":   {Stream: Stderr, Mode: Append},
	"e>":    {Stream: Stderr, Mode: Write},
	"e>>":   {Stream: Stderr, Mode: Append},
	"err>":  {Stream: Stderr, Mode: Write},
	"err>>": {Stream: Stderr, Mode: Append},

	"&>":    {Stream: OutErr, Mode: Write},
	">&":    {Stream: OutErr, Mode: Write},
	"&>>":   {Stream: OutErr, Mode: Append},
	"a>":    {Stream: OutErr, Mode: Write},
	"a>>":   {Stream: OutErr, Mode: Append},
	"all>":  {Stream: OutErr, Mode: Write},
	"all>>": {Stream: OutErr, Mode: Append},

	"2>&1":    {Stream: Stderr, Mode: MergeErrToOut},
	"e>o":     {Stream: Stderr, Mode: MergeErrToOut},
	"err>out": {Stream: Stderr, Mode: MergeErrToOut},

	"1>&2":    {Stream: Stdout, Mode: MergeOutToErr},
	"o>e":     {Stream: Stdout, Mode: MergeOutToErr},
	"out>err": {Stream: Stdout, Mode: MergeOutToErr},
}

// ExtractRedirects splits a token list into command words and parsed
// redirects, validating that no stream is redirected twice. Redirect
// operators may appear anywhere; `< file` pairs conventionally lead and
// the rest trail the command words.
func ExtractRedirects(tokens []string) ([]string, []Redirect, error) {
	var (
		args      []string
		redirects []Redirect
	)
	for i := 0; i < len(tokens); i++ {
		op, ok := redirOps[tokens[i]]
		if !ok {
			args = append(args, tokens[i])
			continue
		}
		rd := op
		if rd.NeedsTarget() {
			if i == len(tokens)-1 {
				return nil, nil, fmt.Errorf("redirect %q missing a target", tokens[i])
			}
			i++
			rd.Target = tokens[i]
		}
		redirects = append(redirects, rd)
	}
	if err := checkRedirectConflicts(args, redirects); err != nil {
		return nil, nil, err
	}
	return args, redirects, nil
}

// checkRedirectConflicts rejects two file targets on one stream. Only
// target-consuming redirects claim a stream; a merge rides alongside a
// file redirect on the same stream (2> err.txt 2>&1), resolving last.
func checkRedirectConflicts(args []string, redirects []Redirect) error {
	var seenIn, seenOut, seenErr bool
	touch := func(s StreamID) error {
		switch s {
		case Stdin:
			if seenIn {
				return &RedirectConflictError{Stream: Stdin, Args: args}
			}
			seenIn = true
		case Stdout:
			if seenOut {
				return &RedirectConflictError{Stream: Stdout, Args: args}
			}
			seenOut = true
		case Stderr:
			if seenErr {
				return &RedirectConflictError{Stream: Stderr, Args: args}
			}
			seenErr = true
		case OutErr:
			if seenOut {
				return &RedirectConflictError{Stream: Stdout, Args: args}
			}
			if seenErr {
				return &RedirectConflictError{Stream: Stderr, Args: args}
			}
			seenOut, seenErr = true, true
		}
		return nil
	}
	for _, rd := range redirects {
		if !rd.NeedsTarget() {
			continue
		}
		if err := touch(rd.Stream); err != nil {
			return err
		}
	}
	return nil
}

// HasRedirect reports whether the spec explicitly redirects the stream.
// Merge redirects count: 2>&1 claims stderr.
func (s *Spec) HasRedirect(id StreamID) bool {
	for _, rd := range s.Redirects {
		if rd.Stream == id || rd.Stream == OutErr && (id == Stdout || id == Stderr) {
			return true
		}
	}
	return false
}
