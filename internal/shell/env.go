package shell

import (
	"os"
	"sort"
	"strings"
)

// environMap converts the process environment into the engine's map form.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Snapshot returns a copy of the session environment. Every pipeline
// stage gets its own snapshot at spec-build time; mutations made to the
// session afterwards are never observed by a running stage.
func (s *Session) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	env := make(map[string]string, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return env
}

// Getenv looks a variable up in the session environment.
func (s *Session) Getenv(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.env[key]
	return v, ok
}

// Setenv sets a session variable. Running pipelines keep the snapshot
// they were built with.
func (s *Session) Setenv(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env[key] = value
}

// Unsetenv removes a session variable.
func (s *Session) Unsetenv(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.env, key)
}

// EnvNames returns the session variable names, sorted.
func (s *Session) EnvNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.env))
	for k := range s.env {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
