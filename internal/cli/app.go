package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/stockledger/internal/config"
	"github.com/roach88/stockledger/internal/logging"
	"github.com/roach88/stockledger/internal/stock"
	"github.com/roach88/stockledger/internal/store"
	"github.com/roach88/stockledger/internal/transfer"
)

// app bundles the services one command invocation works with.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *store.Store
	initiator  *transfer.Initiator
	reconciler *transfer.Reconciler
	aggregator *stock.Aggregator
	out        *OutputFormatter
}

// openApp resolves configuration, builds the logger and opens the store.
// Callers must Close the returned app.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
	}

	logCfg := logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON}
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	logger, _, err := logging.New(logCfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	storeOpts := []store.Option{}
	if cfg.Device.SyncID != "" {
		storeOpts = append(storeOpts, store.WithSyncID(cfg.Device.SyncID))
	}

	logger.Debug("opening database", zap.String("path", cfg.Database.Path))
	st, err := store.Open(cfg.Database.Path, storeOpts...)
	if err != nil {
		_ = logger.Sync()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		initiator:  transfer.NewInitiator(st, transfer.WithLogger(logger)),
		reconciler: transfer.NewReconciler(st, transfer.WithLogger(logger)),
		aggregator: stock.New(st, st.Hub(), stock.WithLogger(logger)),
		out:        newFormatter(opts, cmd),
	}, nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// watchLedger returns the context a --watch loop runs under and starts
// polling the database, so commits made by other processes reach the
// store's hub too. stop cancels the context and waits for the poller.
func (a *app) watchLedger(cmd *cobra.Command) (context.Context, func(), error) {
	ctx, cancel := watchContext(cmd)
	wait, err := a.store.PollExternal(ctx, a.cfg.Watch.PollInterval, func(err error) {
		a.logger.Warn("external change poll failed", zap.Error(err))
	})
	if err != nil {
		cancel()
		return nil, nil, a.out.LedgerError(err)
	}
	return ctx, func() {
		cancel()
		wait()
	}, nil
}

// operator is the created_by stamped on writes from this device.
func (a *app) operator() string {
	return a.cfg.Device.Operator
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
