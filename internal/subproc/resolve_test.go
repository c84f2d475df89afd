package subproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver(t *testing.T) {
	t.Parallel()

	t.Run("resolves and caches", func(t *testing.T) {
		t.Parallel()
		calls := 0
		r := NewResolver()
		r.lookPath = func(name string) (string, error) {
			calls++
			return "/bin/" + name, nil
		}

		path, err := r.Resolve("cat")
		require.NoError(t, err)
		assert.Equal(t, "/bin/cat", path)

		path, err = r.Resolve("cat")
		require.NoError(t, err)
		assert.Equal(t, "/bin/cat", path)
		assert.Equal(t, 1, calls, "second resolve should hit the cache")
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		r := NewResolver()
		r.lookPath = func(string) (string, error) {
			return "", &CommandNotFoundError{Name: "x"}
		}
		_, err := r.Resolve("definitely-not-here")
		var cnf *CommandNotFoundError
		require.ErrorAs(t, err, &cnf)
		assert.Equal(t, "definitely-not-here", cnf.Name)
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()
		r := NewResolver()
		_, err := r.Resolve("")
		require.Error(t, err)
	})

	t.Run("forget drops the cache entry", func(t *testing.T) {
		t.Parallel()
		calls := 0
		r := NewResolver()
		r.lookPath = func(name string) (string, error) {
			calls++
			return "/bin/" + name, nil
		}
		_, _ = r.Resolve("ls")
		r.Forget("ls")
		_, _ = r.Resolve("ls")
		assert.Equal(t, 2, calls)
	})

	t.Run("system lookup finds a real binary", func(t *testing.T) {
		t.Parallel()
		r := NewResolver()
		path, err := r.Resolve("sh")
		require.NoError(t, err)
		assert.NotEmpty(t, path)
	})
}

func TestPredictor(t *testing.T) {
	t.Parallel()

	p := NewPredictor([]string{"vim", "*top"}, []string{"less"})

	assert.False(t, p.Threadable("vim"))
	assert.False(t, p.Threadable("/usr/bin/vim"), "basename should match")
	assert.False(t, p.Threadable("htop"), "glob should match")
	assert.True(t, p.Threadable("ls"))

	assert.False(t, p.Capturable("less"))
	assert.True(t, p.Capturable("vim"), "lists are independent")
}
