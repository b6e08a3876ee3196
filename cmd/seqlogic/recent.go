package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/seqlogic/fileio"
	"github.com/signalsfoundry/seqlogic/internal/ui"
)

func recentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show or edit the list of recently used diagrams",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recently used diagrams, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.recentStore()
				if err != nil {
					return err
				}
				entries, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					ui.Subtle.Fprintln(cmd.OutOrStdout(), "  no recent diagrams")
					return nil
				}
				rows := make([][]string, len(entries))
				for i, e := range entries {
					rows[i] = []string{fileio.DisplayName(e.Path), e.Path, e.Updated.Format(time.DateTime)}
				}
				ui.Table(cmd.OutOrStdout(), []string{"NAME", "PATH", "UPDATED"}, rows)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <path>",
			Short: "Forget a diagram",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.recentStore()
				if err != nil {
					return err
				}
				return s.Remove(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}
