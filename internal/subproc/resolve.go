package subproc

import (
	"fmt"
	"os/exec"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CommandNotFoundError reports a command word that resolved to no binary.
type CommandNotFoundError struct {
	Name string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s", e.Name)
}

const resolverCacheSize = 512

// Resolver locates binaries on PATH, caching hits for the session so
// repeated builds of the same command stay cheap and idempotent. The
// cache lives for one session; PATH edits mid-session are not observed.
type Resolver struct {
	cache *lru.Cache[string, string]

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

func NewResolver() *Resolver {
	cache, _ := lru.New[string, string](resolverCacheSize)
	return &Resolver{
		cache:    cache,
		lookPath: exec.LookPath,
	}
}

// Resolve returns the absolute path for a command word. Words containing
// a path separator bypass PATH search, like execvp.
func (r *Resolver) Resolve(name string) (string, error) {
	if name == "" {
		return "", &CommandNotFoundError{Name: name}
	}
	if path, ok := r.cache.Get(name); ok {
		return path, nil
	}
	path, err := r.lookPath(name)
	if err != nil {
		// exec.LookPath resolves relative paths too; any failure here
		// means the word names nothing runnable.
		return "", &CommandNotFoundError{Name: name}
	}
	if !strings.Contains(name, "/") {
		r.cache.Add(name, path)
	}
	return path, nil
}

// Forget drops a cached entry, for callers that watch PATH changes.
func (r *Resolver) Forget(name string) {
	r.cache.Remove(name)
}
