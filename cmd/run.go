package cmd

import (
	"fmt"
	"os"
	osignal "os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/subsh-org/subsh/internal/capture"
	"github.com/subsh-org/subsh/internal/pipeline"
	"github.com/subsh-org/subsh/internal/shell"
	"github.com/subsh-org/subsh/internal/signal"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command line>",
		Short: "Run a command line through the pipeline engine",
		Long: `Run a command line through the pipeline engine.

Supports pipes, && / || / ; connectors, redirects and a trailing & for
background jobs. The process exits with the pipeline's returncode.`,
		Example: `  subsh run -- 'echo hello | tr a-z A-Z'
  subsh run --capture text -- 'ls -la | wc -l'
  subsh run --env-file .env -- 'env | grep APP_'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			captureFlag, _ := cmd.Flags().GetString("capture")
			mode, err := captureModeFromFlag(captureFlag)
			if err != nil {
				return err
			}

			session, err := shell.New(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer session.Close(ctx)

			// A termination signal hangs up the session's jobs before the
			// process dies, the way an interactive shell exits.
			sigCh := make(chan os.Signal, 1)
			osignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer func() {
				osignal.Stop(sigCh)
				close(sigCh)
			}()
			go func() {
				sig, ok := <-sigCh
				if !ok || !signal.IsTerminationSignalOS(sig) {
					return
				}
				session.Close(ctx)
				code := 128
				if s, isSys := sig.(syscall.Signal); isSys {
					code += int(s)
				}
				os.Exit(code)
			}()

			if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
				vars, err := godotenv.Read(envFile)
				if err != nil {
					return fmt.Errorf("reading env file: %w", err)
				}
				for k, v := range vars {
					session.Setenv(k, v)
				}
			}

			parsed, err := translate(strings.Join(args, " "))
			if err != nil {
				return err
			}
			chain := &pipeline.Chain{}
			for i, pp := range parsed {
				stageMode := capture.Uncaptured
				if i == len(parsed)-1 {
					stageMode = mode
				}
				p, err := session.BuildPipeline(pp.stages, stageMode, pp.background)
				if err != nil {
					return err
				}
				chain.Links = append(chain.Links, pipeline.Link{Pipeline: p, Op: pp.op})
			}

			res, err := session.Run(ctx, chain)
			if res != nil && mode.CapturesStdout() {
				fmt.Print(res.Out())
				if mode.CapturesStderr() {
					fmt.Fprint(os.Stderr, res.Err())
				}
			}
			// `--capture result` runs uncaptured but still hands back a
			// result object; show it, since the output already went to the
			// terminal on its own.
			if res != nil && err == nil && mode.ReturnsResult() && !mode.CapturesStdout() &&
				!res.Stopped() && !res.EndedAt().IsZero() {
				fmt.Fprintln(os.Stderr, color.CyanString("%s: rtn=%d pid=%d", res.ExecutedCmd, res.Rtn(), res.Pid()))
			}
			if err != nil {
				return err
			}
			// A still-running background pipeline has no exit status to
			// report; the process exits clean and the job keeps going.
			if res != nil && !res.Stopped() && !res.EndedAt().IsZero() {
				if rtn := res.Rtn(); rtn != 0 {
					session.Close(ctx)
					if rtn < 0 {
						rtn = 128 - rtn
					}
					os.Exit(rtn)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("capture", "none",
		"capture mode for the final pipeline: none, result, text or object")
	cmd.Flags().String("env-file", "",
		"dotenv file merged into the session environment before running")
	return cmd
}

func captureModeFromFlag(flag string) (capture.Mode, error) {
	switch flag {
	case "", "none":
		return capture.Uncaptured, nil
	case "result":
		return capture.Hidden, nil
	case "text":
		return capture.Text, nil
	case "object":
		return capture.Object, nil
	default:
		return 0, fmt.Errorf("unknown capture mode %q (want none, result, text or object)", flag)
	}
}
