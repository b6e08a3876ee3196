package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/seqlogic/fileio"
	"github.com/signalsfoundry/seqlogic/internal/logging"
	"github.com/signalsfoundry/seqlogic/internal/ui"
)

func watchCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-validate and re-run a diagram every time it is saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.applyDefaults(cmd, a)
			// Watching always runs a bounded accelerated simulation.
			opts.realtime = false
			if opts.ticks <= 0 {
				opts.ticks = 100
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ctx, out := cmd.Context(), cmd.OutOrStdout()

			a.rerun(ctx, cmd, path, opts)
			ui.Subtle.Fprintf(out, "  watching %s, press Ctrl+C to stop\n", path)
			err = fileio.Watch(ctx, path, fileio.DefaultWatchOptions(), func(string) {
				a.rerun(ctx, cmd, path, opts)
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

// rerun validates and simulates path, reporting failures instead of
// stopping the watch.
func (a *app) rerun(ctx context.Context, cmd *cobra.Command, path string, opts runOptions) {
	out := cmd.OutOrStdout()
	if err := a.decodeFile(ctx, path); err != nil {
		a.log.Warn(ctx, "diagram is invalid", logging.String("path", path), logging.Err(err))
		ui.Bad.Fprintf(out, "  %s %s: %v\n", ui.StatusIcon(false), fileio.DisplayName(path), err)
		return
	}
	if err := a.run(ctx, out, path, opts); err != nil {
		ui.Bad.Fprintf(out, "  %s %v\n", ui.StatusIcon(false), err)
	}
}
