// Command seqlogic loads, simulates, edits and inspects logic-circuit
// diagrams from the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/signalsfoundry/seqlogic/fileio"
	"github.com/signalsfoundry/seqlogic/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{fs: fileio.OS{}}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		// Post-run hooks are skipped when a command fails.
		_ = a.teardown(context.Background())
		ui.Bad.Fprintf(os.Stderr, "seqlogic: %v\n", err)
		stop()
		os.Exit(1)
	}
}
