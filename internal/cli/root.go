// Package cli implements the tasksync device command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BuzzLyutic/task-sync/internal/config"
	"github.com/BuzzLyutic/task-sync/internal/device"
	"github.com/BuzzLyutic/task-sync/internal/localstore"
	"github.com/BuzzLyutic/task-sync/internal/remote"
	"github.com/BuzzLyutic/task-sync/internal/syncer"
	"github.com/BuzzLyutic/task-sync/internal/telemetry"
	"github.com/BuzzLyutic/task-sync/internal/worker"
)

// app is the state shared by every command of one invocation.
type app struct {
	cfgPath   string
	serverURL string
	dataDir   string
	verbose   bool
	noSync    bool

	cfg     config.ClientConfig
	logger  *zap.Logger
	version string
	errOut  io.Writer

	telemetry *telemetry.Provider
	store     localstore.Store
	tasks     *device.Manager
	client    *remote.Client
	engine    *syncer.Engine

	// auto is set while the daemon runs; mutations then leave syncing to it.
	auto *worker.AutoSyncer
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tasksync",
		Short: "Offline-first task list",
		Long: `tasksync keeps a task list on this device and synchronizes it with a
task server whenever the server is reachable. Every change is saved locally
first, so the list stays usable offline.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", config.ClientConfigPath(), "Configuration file")
	flags.StringVar(&a.serverURL, "server", "", "Task server URL (overrides server_url)")
	flags.StringVar(&a.dataDir, "data-dir", "", "Local data directory (overrides data_dir)")
	flags.BoolVar(&a.noSync, "no-sync", false, "Do not synchronize after changes")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(a.taskCommands()...)
	root.AddCommand(a.syncCmd())
	root.AddCommand(a.daemonCmd())
	root.AddCommand(a.configCmd())
	return root
}

// Execute runs the CLI.
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClient(a.cfgPath)
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.ServerURL = strings.TrimRight(a.serverURL, "/")
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.version = cmd.Root().Version
	a.errOut = cmd.ErrOrStderr()

	a.logger, err = newLogger(cfg.LogLevel)
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

// withStore opens the local store around fn. Nested calls reuse the open
// store.
func (a *app) withStore(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if a.store != nil {
			return fn(cmd, args)
		}
		if err := a.open(); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) open() error {
	store, err := localstore.Open(a.cfg.StorePath())
	if err != nil {
		return fmt.Errorf("open %s: %w", a.cfg.StorePath(), err)
	}

	tel, err := telemetry.Init(context.Background(), telemetry.Config{
		Exporter: a.cfg.Metrics,
		Interval: a.cfg.MetricsInterval,
		Writer:   a.errOut,
		Version:  a.version,
	})
	if err != nil {
		store.Close()
		return err
	}

	metrics, err := syncer.NewMetrics(tel.Meter(syncer.MeterName))
	if err != nil {
		tel.Shutdown(context.Background())
		store.Close()
		return err
	}

	a.telemetry = tel
	a.store = store
	a.tasks = device.NewManager(store, a.logger)
	a.client = remote.NewClient(a.cfg.ServerURL, a.cfg.RequestTimeout, nil)
	a.engine = syncer.NewEngine(store, a.client, a.logger, syncer.WithMetrics(metrics))
	return nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.telemetry.Shutdown(context.Background()); err != nil {
		a.logger.Warn("flushing metrics", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing local store", zap.Error(err))
	}
	a.telemetry, a.store, a.tasks, a.client, a.engine = nil, nil, nil, nil, nil
}

// afterChange pushes a local change right away. Being offline is not an
// error: the change stays queued.
func (a *app) afterChange(cmd *cobra.Command) error {
	if a.noSync || a.auto != nil {
		return nil
	}

	res, err := a.engine.Sync(cmd.Context())
	switch {
	case errors.Is(err, syncer.ErrOffline):
		fmt.Fprintln(cmd.OutOrStdout(), "offline: saved locally, will sync later")
		return nil
	case err != nil:
		return err
	case res.Partial():
		fmt.Fprintln(cmd.OutOrStdout(), res.Status())
	}
	return nil
}
