package subproc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dario.cat/mergo"

	"github.com/subsh-org/subsh/internal/capture"
)

// Kind discriminates the closed set of stage variants. A Spec is resolved
// to its kind exactly once by the Builder; later phases switch on it and
// never re-resolve.
type Kind int

const (
	// External is a command resolved to a binary on PATH.
	External Kind = iota
	// ThreadableCallable is an in-process function safe to run on a
	// worker goroutine.
	ThreadableCallable
	// UnthreadableCallable must run on the launching goroutine.
	UnthreadableCallable
	// ExecBlock is an alias whose body is a host-interpreter code block,
	// proxied like a callable.
	ExecBlock
)

func (k Kind) String() string {
	switch k {
	case External:
		return "external"
	case ThreadableCallable:
		return "callable"
	case UnthreadableCallable:
		return "callable-inline"
	case ExecBlock:
		return "exec-block"
	default:
		return "unknown"
	}
}

// Callable reports whether the kind runs in-process.
func (k Kind) Callable() bool {
	return k != External
}

// Call carries one callable stage invocation: its arguments (minus the
// alias word), its wired stdio and a read-only environment view.
type Call struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string
}

// CallableFunc is the signature of in-process stages. A nil return means
// exit 0; an error implementing ExitCoder carries its own code; any other
// error reports exit 1 alongside the message on stderr.
type CallableFunc func(ctx context.Context, call *Call) error

// ExitCoder is implemented by errors that carry an exit status.
type ExitCoder interface {
	error
	ExitCode() int
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) ExitCode() int {
	return e.code
}

// NewExitError returns an error reporting the given exit status without
// any message. Callables use it to fail with a specific code.
func NewExitError(code int) error {
	return &exitError{code: code}
}

// AliasKind distinguishes how an alias expands.
type AliasKind int

const (
	// AliasExpansion splices its words in place of the command word.
	AliasExpansion AliasKind = iota
	// AliasFunc runs a callable.
	AliasFunc
	// AliasBlock runs a host-interpreter code block through a callable.
	AliasBlock
)

// Alias is one resolved alias entry. Expansion aliases are re-resolved
// after splicing; callable aliases terminate resolution.
type Alias struct {
	Name       string
	Expansion  []string
	Fn         CallableFunc
	Kind       AliasKind
	Threadable bool
	Capturable bool
}

// AliasResolver looks up the alias for a command word.
type AliasResolver interface {
	Lookup(name string) (*Alias, bool)
}

// Spec is a fully resolved description of one pipeline stage.
type Spec struct {
	// Args is the argv after alias expansion with redirect tokens removed.
	Args []string
	// Cmd is the resolved binary path. Empty for callable kinds.
	Cmd string
	// Fn is the callable for non-external kinds.
	Fn CallableFunc

	Kind      Kind
	Redirects []Redirect
	Capture   capture.Mode

	LastInPipeline bool
	Uncapturable   bool
	Threadable     bool
	Background     bool

	// Env is the merged environment the stage runs with.
	Env map[string]string
	// Index is the stage position within its pipeline.
	Index int
}

// String formats the stage roughly the way it was typed.
func (s *Spec) String() string {
	var b strings.Builder
	b.WriteString(quoteArgs(s.Args))
	for _, rd := range s.Redirects {
		b.WriteByte(' ')
		b.WriteString(rd.String())
	}
	return b.String()
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			quoted[i] = fmt.Sprintf("%q", a)
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}

// maxAliasDepth bounds alias-to-alias expansion.
const maxAliasDepth = 10

// Builder resolves token lists into Specs. It holds the session's alias
// registry, binary resolver and threadability predictor.
type Builder struct {
	Aliases   AliasResolver
	Resolver  *Resolver
	Predictor *Predictor
}

// Build runs the resolution chain for one stage: redirect extraction,
// alias resolution, binary location and threadability classification.
// env is the session snapshot; overrides are per-stage deltas merged over
// it. Building the same tokens twice yields the same spec.
func (b *Builder) Build(tokens []string, mode capture.Mode, env, overrides map[string]string) (*Spec, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	args, redirects, err := ExtractRedirects(tokens)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("no command words in %v", tokens)
	}

	sp := &Spec{
		Args:      args,
		Redirects: redirects,
		Capture:   mode,
		Env:       mergeEnv(env, overrides),
	}

	if err := b.resolveAlias(sp); err != nil {
		return nil, err
	}
	if sp.Kind == External {
		path, err := b.resolveBinary(sp.Args[0])
		if err != nil {
			return nil, err
		}
		sp.Cmd = path
		sp.Threadable = b.threadable(sp.Args[0])
		sp.Uncapturable = !b.capturable(sp.Args[0])
	}
	return sp, nil
}

func (b *Builder) resolveAlias(sp *Spec) error {
	sp.Kind = External
	sp.Threadable = true
	if b.Aliases == nil {
		return nil
	}
	for depth := 0; depth < maxAliasDepth; depth++ {
		alias, ok := b.Aliases.Lookup(sp.Args[0])
		if !ok {
			return nil
		}
		switch alias.Kind {
		case AliasExpansion:
			if len(alias.Expansion) == 0 {
				return fmt.Errorf("alias %q expands to nothing", alias.Name)
			}
			expanded := make([]string, 0, len(alias.Expansion)+len(sp.Args)-1)
			expanded = append(expanded, alias.Expansion...)
			expanded = append(expanded, sp.Args[1:]...)
			if expanded[0] == sp.Args[0] {
				// self-referential expansion stops resolution
				sp.Args = expanded
				return nil
			}
			sp.Args = expanded
		case AliasFunc:
			sp.Fn = alias.Fn
			sp.Threadable = alias.Threadable
			sp.Uncapturable = !alias.Capturable
			if alias.Threadable {
				sp.Kind = ThreadableCallable
			} else {
				sp.Kind = UnthreadableCallable
			}
			return nil
		case AliasBlock:
			sp.Fn = alias.Fn
			sp.Threadable = alias.Threadable
			sp.Uncapturable = !alias.Capturable
			sp.Kind = ExecBlock
			return nil
		}
	}
	return fmt.Errorf("alias resolution for %q exceeded %d levels", sp.Args[0], maxAliasDepth)
}

func (b *Builder) resolveBinary(name string) (string, error) {
	if b.Resolver == nil {
		return name, nil
	}
	return b.Resolver.Resolve(name)
}

func (b *Builder) threadable(name string) bool {
	if b.Predictor == nil {
		return true
	}
	return b.Predictor.Threadable(name)
}

func (b *Builder) capturable(name string) bool {
	if b.Predictor == nil {
		return true
	}
	return b.Predictor.Capturable(name)
}

func mergeEnv(env, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(env)+len(overrides))
	for k, v := range env {
		merged[k] = v
	}
	if len(overrides) > 0 {
		_ = mergo.Merge(&merged, overrides, mergo.WithOverride)
	}
	return merged
}

// Environ flattens the spec environment into the form exec wants.
func (s *Spec) Environ() []string {
	if s.Env == nil {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	return out
}
