package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/seqlogic/core"
	"github.com/signalsfoundry/seqlogic/fileio"
	"github.com/signalsfoundry/seqlogic/internal/logging"
	"github.com/signalsfoundry/seqlogic/internal/observability"
	"github.com/signalsfoundry/seqlogic/internal/ui"
	"github.com/signalsfoundry/seqlogic/timectrl"
)

type runOptions struct {
	ticks       int
	realtime    bool
	interval    time.Duration
	seed        uint64
	metricsAddr string
}

func runCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Simulate a diagram and print the state of every group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyDefaults(cmd, a)
			return a.run(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	return cmd
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.ticks, "ticks", 0, "number of ticks to simulate; 0 in realtime mode runs until interrupted")
	cmd.Flags().BoolVar(&o.realtime, "realtime", false, "advance one tick per interval of wall time")
	cmd.Flags().DurationVar(&o.interval, "interval", 0, "simulated time between ticks")
	cmd.Flags().Uint64Var(&o.seed, "seed", 0, "seed for propagation delays; 0 picks one at random")
}

// applyDefaults fills options the user did not set from the config file.
func (o *runOptions) applyDefaults(cmd *cobra.Command, a *app) {
	sim := a.cfg.Simulation
	if !cmd.Flags().Changed("ticks") {
		o.ticks = sim.Ticks
	}
	if !cmd.Flags().Changed("realtime") {
		o.realtime = sim.RealTime
	}
	if !cmd.Flags().Changed("interval") {
		o.interval = sim.Interval.Duration
	}
	if !cmd.Flags().Changed("seed") {
		o.seed = sim.Seed
	}
	if o.metricsAddr == "" {
		o.metricsAddr = a.cfg.Metrics.Addr
	}
	if o.seed == 0 {
		o.seed = rand.Uint64()
	}
	if o.interval <= 0 {
		o.interval = 16 * time.Millisecond
	}
}

func (a *app) run(ctx context.Context, out io.Writer, path string, opts runOptions) error {
	ctx, span := observability.StartSpan(ctx, "seqlogic.run",
		attribute.String("path", path),
		attribute.Int("ticks", opts.ticks),
	)
	defer span.End()

	if opts.metricsAddr != "" {
		stop := a.serveMetrics(ctx, opts.metricsAddr)
		defer stop()
	}

	start := time.Now()
	d, err := a.load(ctx, path, core.WithSeed(opts.seed), core.WithStartTime(start))
	if err != nil {
		return err
	}
	a.touchRecent(ctx, path)

	flips := simulate(ctx, d, start, opts)
	a.log.Info(ctx, "simulation finished",
		logging.String("path", path),
		logging.Int("ticks", d.CurrentTick()),
		logging.Int("flips", flips),
		logging.String("seed", strconv.FormatUint(opts.seed, 10)),
	)

	ui.Banner(out, fmt.Sprintf("%s after %s, %s (seed %d)",
		fileio.DisplayName(path), plural(d.CurrentTick(), "tick"), plural(flips, "flip"), opts.seed))
	printGroups(out, d)
	return nil
}

// simulate drives d through a frame clock and returns the number of flips.
func simulate(ctx context.Context, d *core.Diagram, start time.Time, opts runOptions) int {
	mode := timectrl.Accelerated
	if opts.realtime {
		mode = timectrl.RealTime
	}
	frames := opts.ticks
	if frames <= 0 && !opts.realtime {
		return 0
	}

	engine := core.NewSimulationEngine(d)
	flips := 0
	engine.RegisterTickListener(func(_ int, _ time.Time, flipped []string) {
		flips += len(flipped)
	})

	tc := timectrl.NewTimeController(start, opts.interval, mode)
	tc.AddListener(func(_ int, simTime time.Time) {
		engine.Step(simTime)
	})
	<-tc.Start(ctx, frames)
	return flips
}

func printGroups(out io.Writer, d *core.Diagram) {
	topo := d.Topology()
	rows := make([][]string, 0, topo.GroupCount())
	for _, root := range topo.Roots() {
		st, err := d.NodeStatus(root)
		if err != nil {
			continue
		}
		next := "-"
		if st.NextTick != nil {
			next = strconv.Itoa(*st.NextTick)
		}
		source := "fixed"
		if topo.Clocked(root) {
			source = "clock"
		}
		rows = append(rows, []string{
			shortID(root),
			strconv.Itoa(len(topo.Members(root))),
			source,
			ui.Level(st.Powered),
			ui.Level(st.Active),
			next,
		})
	}
	ui.Table(out, []string{"GROUP", "NODES", "SOURCE", "POWERED", "ACTIVE", "NEXT"}, rows)
}

// serveMetrics exposes the collector on addr until the returned func is
// called.
func (a *app) serveMetrics(ctx context.Context, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn(ctx, "metrics server stopped", logging.String("addr", addr), logging.Err(err))
		}
	}()
	a.log.Info(ctx, "serving metrics", logging.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
