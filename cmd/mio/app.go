package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sedorikku1949/MioEngine/internal/config"
)

// processStart is taken as early as the runtime allows.
var processStart = time.Now()

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes returned by submain.
const (
	exitOK      = 0
	exitFailure = 1
	exitArchive = 2
	exitConfig  = 3
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if code == exitOK && err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func submain(ctx context.Context) int {
	cmd := newRootCommand(defaultRunDeps(os.Stdout, os.Stderr))
	cmd.SetArgs(os.Args[1:])
	return execute(ctx, cmd, os.Stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	_, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !errors.Is(ee.err, context.Canceled) {
			fmt.Fprintf(stderr, "%s\n", ee.err)
		}
		return ee.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "%s\n", err)
	}
	return exitFailure
}

func newRootCommand(deps runDeps) *cobra.Command {
	var configPath string
	var adminAddr string

	cmd := &cobra.Command{
		Use:           "mio",
		Short:         "MioEngine chat bot runtime",
		SilenceErrors: true,
		Example: `
  # Run with config.toml from the working directory
  MIO_TOKEN=... mio

  # Force maintenance presence and two shards
  MIO_TOKEN=... mio run --maintenance --shards 2

  # Talk to a running instance
  mio status
  mio flags --maintenance=false
  mio archive keys guilds
`,
	}
	cmd.SetOut(deps.stdout)
	cmd.SetErr(deps.stderr)
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the TOML configuration file (default "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&adminAddr, "admin", "", "admin address of a running instance (defaults to admin.listen)")

	run := newRunCommand(&configPath, deps)
	// The bare root command runs the bot, sharing run's flags.
	cmd.Flags().AddFlagSet(run.Flags())
	cmd.RunE = run.RunE

	adminAddress := func() (string, error) {
		if adminAddr != "" {
			return adminAddr, nil
		}
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return "", err
		}
		if cfg.Admin.Listen == "" {
			return "", errors.New("admin surface is disabled; pass --admin")
		}
		return cfg.Admin.Listen, nil
	}

	cmd.AddCommand(
		run,
		newStatusCommand(adminAddress),
		newFlagsCommand(adminAddress),
		newArchiveCommand(adminAddress),
		newVersionCommand(),
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mio version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mio %s\n", version)
			return err
		},
	}
}
