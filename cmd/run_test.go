//go:build !windows

package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logFormat: text\n"), 0o600))

	t.Run("clean exit", func(t *testing.T) {
		rootCmd.SetArgs([]string{"run", "--config", cfgPath, "--", "true"})
		assert.NoError(t, rootCmd.Execute())
	})

	t.Run("result capture prints the summary", func(t *testing.T) {
		rootCmd.SetArgs([]string{"run", "--config", cfgPath, "--capture", "result", "--", "true"})
		assert.NoError(t, rootCmd.Execute())
	})

	t.Run("translation error surfaces", func(t *testing.T) {
		rootCmd.SetArgs([]string{"run", "--config", cfgPath, "--", "echo $HOME"})
		assert.Error(t, rootCmd.Execute())
	})

	t.Run("bad capture flag", func(t *testing.T) {
		rootCmd.SetArgs([]string{"run", "--config", cfgPath, "--capture", "loud", "--", "true"})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown capture mode")
	})

	t.Run("missing env file", func(t *testing.T) {
		// Flag values persist on the shared command instance; reset capture.
		rootCmd.SetArgs([]string{"run", "--config", cfgPath, "--capture", "none",
			"--env-file", "/nonexistent.env", "--", "true"})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading env file")
	})
}
