package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/seqlogic/core"
	"github.com/signalsfoundry/seqlogic/fileio"
	"github.com/signalsfoundry/seqlogic/internal/config"
	"github.com/signalsfoundry/seqlogic/internal/logging"
	"github.com/signalsfoundry/seqlogic/internal/observability"
	"github.com/signalsfoundry/seqlogic/internal/ui"
	"github.com/signalsfoundry/seqlogic/recent"
	"github.com/signalsfoundry/seqlogic/storage"
)

var version = "0.3.0"

// app carries what every command needs once flags and config are parsed.
type app struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg     *config.Config
	log     logging.Logger
	fs      fileio.FileSystem
	metrics *observability.SimCollector

	// recent is opened lazily unless a test injects one.
	recent      *recent.Store
	ownsRecent  bool
	stopTracing func(context.Context) error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "seqlogic",
		Short:         "Simulate sequential logic circuits",
		Long:          ui.Brand.Sprint("seqlogic") + " simulates circuits of nodes joined by plain and inverting wires\n" + ui.Subtle.Sprint("Load, run, merge and export .seq.json diagrams"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.SetVersionTemplate("seqlogic {{ .Version }}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newCmd(a),
		runCmd(a),
		validateCmd(a),
		exportCmd(a),
		mergeCmd(a),
		unitsCmd(a),
		recentCmd(a),
		watchCmd(a),
		configCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	ui.SetColor(cfg.UI.Color)

	logCfg := logging.ConfigFromEnv(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if a.logLevel != "" {
		logCfg.Level = a.logLevel
	}
	if a.logFormat != "" {
		logCfg.Format = a.logFormat
	}
	ctx, log := logging.WithRunLogger(cmd.Context(), logging.New(logCfg))
	a.log = log.With(logging.String("command", cmd.Name()))
	cmd.SetContext(ctx)

	if a.fs == nil {
		a.fs = fileio.OS{}
	}
	if a.metrics == nil {
		a.metrics, err = observability.NewSimCollector(prometheus.NewRegistry())
		if err != nil {
			return err
		}
	}

	tracingCfg := observability.DefaultTracingConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	if cfg.Tracing.Exporter != "" {
		tracingCfg.Exporter = cfg.Tracing.Exporter
	}
	tracingCfg.Endpoint = cfg.Tracing.Endpoint
	if cfg.Tracing.SampleRatio > 0 {
		tracingCfg.SampleRatio = cfg.Tracing.SampleRatio
	}
	tracingCfg = observability.TracingConfigFromEnv(tracingCfg)
	tracingCfg.Writer = cmd.ErrOrStderr()
	a.stopTracing, err = observability.InitTracing(ctx, tracingCfg, a.log)
	return err
}

func (a *app) teardown(ctx context.Context) error {
	observability.ShutdownWithTimeout(ctx, a.stopTracing, a.log)
	a.stopTracing = nil
	if a.ownsRecent && a.recent != nil {
		err := a.recent.Close()
		a.recent, a.ownsRecent = nil, false
		return err
	}
	return nil
}

// recentStore opens the recent-files store on first use.
func (a *app) recentStore() (*recent.Store, error) {
	if a.recent != nil {
		return a.recent, nil
	}
	s, err := recent.Open(recent.Config{
		Path:     a.cfg.Recent.Path,
		Capacity: a.cfg.Recent.Capacity,
		Logger:   a.log,
	})
	if err != nil {
		return nil, err
	}
	a.recent, a.ownsRecent = s, true
	return s, nil
}

// touchRecent remembers path. Failures only warn; the recent list is a
// convenience.
func (a *app) touchRecent(ctx context.Context, path string) {
	s, err := a.recentStore()
	if err == nil {
		err = s.Touch(ctx, path)
	}
	if err != nil {
		a.log.Warn(ctx, "could not update recent files", logging.String("path", path), logging.Err(err))
	}
}

func (a *app) diagramOptions(extra ...core.Option) []core.Option {
	opts := []core.Option{
		core.WithLogger(a.log),
		core.WithMetricsRecorder(a.metrics),
	}
	return append(opts, extra...)
}

func (a *app) load(ctx context.Context, path string, extra ...core.Option) (*core.Diagram, error) {
	start := time.Now()
	d, err := core.LoadFile(ctx, a.fs, path, a.diagramOptions(extra...)...)
	a.metrics.ObserveFileOp("load", time.Since(start), err)
	return d, err
}

func (a *app) save(ctx context.Context, d *core.Diagram, path string) error {
	start := time.Now()
	err := d.SaveFile(ctx, a.fs, path)
	a.metrics.ObserveFileOp("save", time.Since(start), err)
	return err
}

// decodeFile reads and validates a diagram document without building a
// Diagram.
func (a *app) decodeFile(ctx context.Context, path string) error {
	data, err := a.fs.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	s, err := storage.Decode(data)
	if err != nil {
		return err
	}
	return storage.Validate(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
