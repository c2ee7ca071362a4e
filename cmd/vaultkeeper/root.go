package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forest6511/vaultkeeper/internal/logger"
	"github.com/forest6511/vaultkeeper/pkg/appdir"
	"github.com/forest6511/vaultkeeper/pkg/config"
	"github.com/forest6511/vaultkeeper/pkg/credential"
	"github.com/forest6511/vaultkeeper/pkg/notes"
	"github.com/forest6511/vaultkeeper/pkg/session"
	"github.com/forest6511/vaultkeeper/pkg/store"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Global flags
var (
	flagDir       string
	flagVerbose   bool
	flagNoKeyring bool
)

var (
	cfg *config.Config
	log *logrus.Logger
)

// storeOptions is passed to store.Open; nil selects the defaults.
var storeOptions *store.Options

var rootCmd = &cobra.Command{
	Use:           "vaultkeeper",
	Short:         "vaultkeeper keeps encrypted notes in a local store",
	Long:          `An encrypted local note store with OS keyring integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagDir)
		if err != nil {
			return err
		}
		if flagNoKeyring {
			cfg.UseKeyring = false
		}
		log, err = logger.Setup(logger.Options{Level: cfg.LogLevel, Verbose: flagVerbose})
		if err != nil {
			return err
		}
		recordHistory(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Application directory (default: user config dir/vaultkeeper)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagNoKeyring, "no-keyring", false, "Do not read or write the OS credential store")
}

// recordHistory appends the invoked command line to the history file.
// Failures only reach the debug log.
func recordHistory(cmd *cobra.Command, args []string) {
	if cmd.Name() == "history" || cmd.Name() == "__complete" {
		return
	}
	dir, err := cfg.AppDir()
	if err != nil {
		return
	}
	h := dir.History(cfg.HistoryMax)
	if err := h.Load(); err != nil {
		log.WithError(err).Debug("failed to load history")
		return
	}
	h.Add(strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " ")))
	if err := h.Save(); err != nil {
		log.WithError(err).Debug("failed to save history")
	}
}

// app is one process's view of the store: the worker owning the
// connection, the unlock controller and the credential store.
type app struct {
	dir    *appdir.Dir
	worker *worker.Worker
	ctrl   *session.Controller
	orch   *session.Orchestrator
	creds  credential.Provider
}

// openApp opens the store connection and starts its worker. Nothing is
// unlocked yet.
func openApp() (*app, error) {
	dir, err := cfg.AppDir()
	if err != nil {
		return nil, err
	}
	if err := dir.Ensure(); err != nil {
		return nil, err
	}

	conn, err := store.Open(dir.StorePath(), storeOptions)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, fmt.Errorf("store is in use by another vaultkeeper process: %w", err)
		}
		return nil, err
	}
	w := worker.New(conn, &worker.Options{QueueSize: cfg.QueueSize, Logger: log})

	ctrl, err := session.NewController(dir.StorePath(), w, log)
	if err != nil {
		w.Close()
		return nil, err
	}

	var creds credential.Provider
	if cfg.UseKeyring {
		creds = credential.NewDefaultResolver(log)
	}
	return &app{
		dir:    dir,
		worker: w,
		ctrl:   ctrl,
		orch:   session.NewOrchestrator(ctrl, creds, log),
		creds:  creds,
	}, nil
}

// Close stops the worker, which closes the store connection.
func (a *app) Close() {
	a.worker.Close()
}

// unlock brings the store to the unlocked state. A password in
// VAULTKEEPER_PASSWORD is used once and removed from the environment;
// otherwise the saved credential and then the terminal are tried.
func (a *app) unlock(ctx context.Context) (*session.Result, error) {
	return a.unlockWith(ctx, newPrompter())
}

func (a *app) unlockWith(ctx context.Context, p session.Prompter) (*session.Result, error) {
	if pw, ok := os.LookupEnv(config.PasswordEnv); ok {
		os.Unsetenv(config.PasswordEnv)
		var confirm *string
		if a.ctrl.NeedsNewPassword() {
			confirm = &pw
		}
		u, err := a.orch.AttemptUnlock(ctx, pw, a.ctrl.NeedsNewPassword(), confirm)
		if err != nil {
			return nil, err
		}
		return &session.Result{Unlocked: *u, Password: credential.NewSecret(pw)}, nil
	}
	return a.orch.Unlock(ctx, p)
}

// openUnlocked is openApp followed by unlock for an existing store.
func openUnlocked(ctx context.Context) (*app, error) {
	a, err := openApp()
	if err != nil {
		return nil, err
	}
	if a.ctrl.NeedsNewPassword() {
		a.Close()
		return nil, errors.New("no store found: run 'vaultkeeper init' first")
	}
	if _, err := a.unlock(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to unlock store: %w", err)
	}
	return a, nil
}

// openNotes unlocks the store and opens the notes table.
func openNotes(ctx context.Context) (*app, *notes.Store, error) {
	a, err := openUnlocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	ns, err := notes.Open(ctx, a.worker)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, ns, nil
}
