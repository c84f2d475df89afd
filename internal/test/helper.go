package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subsh-org/subsh/internal/config"
	"github.com/subsh-org/subsh/internal/logger"
	"github.com/subsh-org/subsh/internal/shell"
)

// Helper bundles a hermetic session for engine tests: config loaded from
// a throwaway file, stdio on the null device, quiet logger.
type Helper struct {
	Context context.Context
	Config  *config.Config
	Session *shell.Session
}

// Setup builds a ready-to-run session. Mutators adjust the config before
// the session is created.
func Setup(t *testing.T, mutators ...func(*config.Config)) Helper {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logFormat: text\n"), 0o600))
	cfg, err := config.Load(config.WithConfigFile(cfgPath))
	require.NoError(t, err)
	cfg.Paths.AliasFile = ""
	for _, m := range mutators {
		m(cfg)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = devnull.Close() })

	sess, err := shell.New(cfg,
		shell.WithStdio(devnull, devnull, devnull),
		shell.WithInteractive(false),
		shell.WithLogger(logger.NewLogger(logger.WithQuiet())),
	)
	require.NoError(t, err)

	ctx := sess.Context(context.Background())
	t.Cleanup(func() { sess.Close(ctx) })

	return Helper{
		Context: ctx,
		Config:  cfg,
		Session: sess,
	}
}
