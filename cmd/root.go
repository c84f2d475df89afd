package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/subsh-org/subsh/internal/build"
	"github.com/subsh-org/subsh/internal/config"
)

var (
	// cfgFile parameter
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:           build.Slug,
		Short:         "Command pipeline execution engine for an interactive shell.",
		Long:          `Command pipeline execution engine for an interactive shell: pipelines, capture, pty teeing and job control.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		return err
	}
	return nil
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
}

func init() {
	rootCmd.PersistentFlags().
		StringVar(
			&cfgFile, "config", "",
			"config file (default is $XDG_CONFIG_HOME/subsh/config.yaml)",
		)

	registerCommands()
}

func loadConfig() (*config.Config, error) {
	var opts []config.LoaderOption
	if cfgFile != "" {
		opts = append(opts, config.WithConfigFile(cfgFile))
	}
	return config.Load(opts...)
}
