package main

import (
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/seqlogic/internal/ui"
	"github.com/signalsfoundry/seqlogic/units"
)

func unitsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "Browse the library of ready-made circuits",
	}
	cmd.AddCommand(unitsListCmd(), unitsExportCmd(a))
	return cmd
}

func unitsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List library units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			popular := units.Popular()
			rows := make([][]string, 0)
			for _, name := range units.Names() {
				s, err := units.Load(name)
				if err != nil {
					return err
				}
				mark := ""
				if slices.Contains(popular, name) {
					mark = ui.StatusIcon(true)
				}
				rows = append(rows, []string{name, strconv.Itoa(len(s.Nodes)), strconv.Itoa(len(s.Wires)), mark})
			}
			ui.Table(cmd.OutOrStdout(), []string{"NAME", "NODES", "WIRES", "POPULAR"}, rows)
			return nil
		},
	}
}

func unitsExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <name> <file>",
		Short: "Write a library unit to a diagram file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := units.Raw(args[0])
			if err != nil {
				return err
			}
			if err := a.fs.WriteFile(cmd.Context(), args[1], data); err != nil {
				return err
			}
			a.touchRecent(cmd.Context(), args[1])
			ui.Good.Fprintf(cmd.OutOrStdout(), "  %s wrote %s to %s\n", ui.StatusIcon(true), args[0], args[1])
			return nil
		},
	}
}
