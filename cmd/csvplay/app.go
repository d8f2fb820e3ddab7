package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vegasq/csvplay/config"
	"github.com/vegasq/csvplay/logger"
	"github.com/vegasq/csvplay/script"
	"github.com/vegasq/csvplay/state"
	"github.com/vegasq/csvplay/workspace"
)

// app holds what a command needs once configuration is loaded.
type app struct {
	cfg   config.Config
	log   *zap.Logger
	ws    *workspace.Workspace
	close func() error

	closeLog func()

	// flag overrides
	statePath string
	logLevel  string
	dialect   string
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.DefaultPrefix)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.statePath != "" {
		cfg.State.Path = a.statePath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.dialect != "" {
		cfg.Script.Dialect = a.dialect
	}
	a.cfg = cfg

	a.log, a.closeLog, err = logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	compiler, err := script.New(cfg.Script.Dialect, script.WithTimeout(cfg.Script.Timeout))
	if err != nil {
		return err
	}

	var medium state.Medium
	if cfg.State.Path == config.MemoryPath {
		medium = state.NewMemoryMedium(0)
		a.close = func() error { return nil }
	} else {
		db, err := state.OpenSQLite(cfg.State.Path)
		if err != nil {
			return err
		}
		medium = db
		a.close = db.Close
	}

	a.log.Debug("workspace opened",
		zap.String("state", cfg.State.Path),
		zap.String("dialect", compiler.Dialect()),
		zap.Duration("timeout", cfg.Script.Timeout),
	)

	a.ws = workspace.Open(medium, compiler,
		workspace.WithRowCap(cfg.Query.RowCap),
		workspace.WithLogger(a.log),
	)
	return nil
}

func (a *app) shutdown(*cobra.Command, []string) error {
	if a.log != nil {
		_ = a.log.Sync()
	}
	if a.closeLog != nil {
		defer a.closeLog()
	}
	if a.close != nil {
		return a.close()
	}
	return nil
}
