package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/contokens/internal/config"
	"github.com/alfredjeanlab/contokens/internal/lock"
	"github.com/alfredjeanlab/contokens/internal/logging"
	"github.com/alfredjeanlab/contokens/internal/service"
	"github.com/alfredjeanlab/contokens/internal/ui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Command annotations read by setup.
const (
	// annotationMutating commands hold the lock file while they run.
	annotationMutating = "ct/mutating"
	// annotationNoStore commands need the config but not the database.
	annotationNoStore = "ct/no-store"
	// annotationStandalone commands need nothing at all.
	annotationStandalone = "ct/standalone"
)

var (
	configPath string
	jsonOutput bool

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	cmdLock   *lock.Lock
	svc       *service.Service
)

var rootCmd = &cobra.Command{
	Use:           "ct <command>",
	Short:         "Issue, track and distribute single-use event tokens",
	Annotations:   map[string]string{annotationStandalone: "true"},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Help()
		return errHelpShown
	},
}

var helpCmd = &cobra.Command{
	Use:         "help [command]",
	Short:       "Show help for ct or one of its commands",
	Annotations: map[string]string{annotationStandalone: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _, err := cmd.Root().Find(args)
		if err != nil || target == nil {
			target = cmd.Root()
		}
		target.Help()
		return errHelpShown
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG or config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tokens", Title: "Tokens:"},
		&cobra.Group{ID: "delivery", Title: "Delivery:"},
		&cobra.Group{ID: "transfer", Title: "Import/Export:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(colorizedHelpFunc())
	rootCmd.SetHelpCommand(helpCmd)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageErrorf("%v\nusage: %s", err, cmd.UseLine())
	})

	// Tokens
	rootCmd.AddCommand(gentokensCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(statsCmd)

	// Delivery
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sendcsvCmd)
	rootCmd.AddCommand(resendCmd)

	// Import/Export
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	// System
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads what cmd needs before it runs: configuration and logging,
// then the lock for mutating commands, then the service.
func setup(cmd *cobra.Command) error {
	if cmd.Annotations[annotationStandalone] != "" {
		return nil
	}

	c, err := config.Load(config.Path(configPath))
	if err != nil {
		return err
	}
	cfg = c

	l, closer, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return err
	}
	logger, logCloser = l, closer
	ui.Configure()

	if cmd.Annotations[annotationNoStore] != "" {
		return nil
	}

	if cmd.Annotations[annotationMutating] != "" {
		lk, err := lock.Acquire(cmd.Context(), cfg.Tokens.LockFile, cfg.Tokens.LockTimeout)
		if err != nil {
			return err
		}
		cmdLock = lk
		logger.Debug("acquired lock", "path", lk.Path())
	}

	s, err := service.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	svc = s
	return nil
}

// teardown releases everything setup acquired, in reverse order.
func teardown() {
	if svc != nil {
		if err := svc.Close(); err != nil {
			logger.Warn("closing service", "err", err)
		}
		svc = nil
	}
	if cmdLock != nil {
		if err := cmdLock.Release(); err != nil {
			logger.Warn("releasing lock", "path", cmdLock.Path(), "err", err)
		}
		cmdLock = nil
	}
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
	cfg, logger = nil, nil
}

// resetFlags returns every flag under cmd to its default so that run can be
// called more than once in a process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// run executes one command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	resetFlags(rootCmd)

	if args == nil {
		// cobra reads os.Args when given nil.
		args = []string{}
	}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	teardown()

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errHelpShown):
		return exitUsage
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	if isUsageError(err) {
		return exitUsage
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
