package shell

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/subsh-org/subsh/internal/subproc"
)

// Aliases is the session's alias registry. It satisfies the builder's
// resolver interface; the engine never reads it directly.
type Aliases struct {
	mu      sync.RWMutex
	entries map[string]*subproc.Alias
}

func NewAliases() *Aliases {
	return &Aliases{entries: make(map[string]*subproc.Alias)}
}

// Lookup implements subproc.AliasResolver.
func (a *Aliases) Lookup(name string) (*subproc.Alias, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	alias, ok := a.entries[name]
	return alias, ok
}

// SetExpansion registers a word-splicing alias.
func (a *Aliases) SetExpansion(name string, words []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[name] = &subproc.Alias{
		Name:      name,
		Kind:      subproc.AliasExpansion,
		Expansion: words,
	}
}

// FuncOption adjusts a callable alias registration.
type FuncOption func(*subproc.Alias)

// Unthreadable pins the callable to the launching goroutine. For
// debugger-style aliases that must not run off-thread.
func Unthreadable() FuncOption {
	return func(al *subproc.Alias) { al.Threadable = false }
}

// Uncapturable keeps the callable's output off every capture buffer.
func Uncapturable() FuncOption {
	return func(al *subproc.Alias) { al.Capturable = false }
}

// SetFunc registers a callable alias, threadable and capturable unless
// options say otherwise.
func (a *Aliases) SetFunc(name string, fn subproc.CallableFunc, opts ...FuncOption) {
	al := &subproc.Alias{
		Name:       name,
		Kind:       subproc.AliasFunc,
		Fn:         fn,
		Threadable: true,
		Capturable: true,
	}
	for _, opt := range opts {
		opt(al)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[name] = al
}

// SetExecBlock registers a stored host-interpreter code block, proxied
// like a callable.
func (a *Aliases) SetExecBlock(name string, fn subproc.CallableFunc, opts ...FuncOption) {
	al := &subproc.Alias{
		Name:       name,
		Kind:       subproc.AliasBlock,
		Fn:         fn,
		Threadable: true,
		Capturable: true,
	}
	for _, opt := range opts {
		opt(al)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[name] = al
}

func (a *Aliases) Remove(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, name)
}

// Names returns the registered alias names, sorted.
func (a *Aliases) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.entries))
	for name := range a.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFile merges expansion aliases from a YAML file of the shape
//
//	ll: ls -la
//	gs: [git, status]
//
// A missing file is not an error; a malformed one is.
func (a *Aliases) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("alias file %s: %w", path, err)
	}
	for name, val := range raw {
		switch v := val.(type) {
		case string:
			words := strings.Fields(v)
			if len(words) == 0 {
				return fmt.Errorf("alias file %s: alias %q is empty", path, name)
			}
			a.SetExpansion(name, words)
		case []any:
			words := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("alias file %s: alias %q has a non-string word", path, name)
				}
				words = append(words, s)
			}
			if len(words) == 0 {
				return fmt.Errorf("alias file %s: alias %q is empty", path, name)
			}
			a.SetExpansion(name, words)
		default:
			return fmt.Errorf("alias file %s: alias %q must be a string or a list", path, name)
		}
	}
	return nil
}
