package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/seqlogic/core"
	"github.com/signalsfoundry/seqlogic/fileio"
	"github.com/signalsfoundry/seqlogic/internal/logging"
	"github.com/signalsfoundry/seqlogic/internal/observability"
	"github.com/signalsfoundry/seqlogic/internal/ui"
	"github.com/signalsfoundry/seqlogic/model"
	"github.com/signalsfoundry/seqlogic/storage"
	"github.com/signalsfoundry/seqlogic/units"
)

var errInvalidFiles = errors.New("some diagrams are invalid")

func newCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "new <file>",
		Short: "Create an empty diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, path := cmd.Context(), args[0]
			if !force {
				_, err := a.fs.ReadFile(ctx, path)
				if err == nil {
					return fmt.Errorf("%s already exists; use --force to replace it", path)
				}
				if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			data, err := storage.EncodeIndent(model.BlankStorage())
			if err != nil {
				return err
			}
			if err := a.fs.WriteFile(ctx, path, data); err != nil {
				return err
			}
			a.touchRecent(ctx, path)
			ui.Good.Fprintf(cmd.OutOrStdout(), "  %s created %s\n", ui.StatusIcon(true), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing file")
	return cmd
}

func validateCmd(a *app) *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check that diagram files are well formed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := a.validateAll(cmd.Context(), args, jobs)

			rows := make([][]string, len(args))
			failed := 0
			for i, path := range args {
				detail := "ok"
				if results[i] != nil {
					detail = results[i].Error()
					failed++
				}
				rows[i] = []string{ui.StatusIcon(results[i] == nil), path, detail}
			}
			ui.Table(cmd.OutOrStdout(), []string{"", "FILE", "RESULT"}, rows)
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errInvalidFiles, failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&jobs, "jobs", 4, "number of files checked concurrently")
	return cmd
}

// validateAll checks every path concurrently and returns one result per
// path, in order.
func (a *app) validateAll(ctx context.Context, paths []string, jobs int) []error {
	ctx, span := observability.StartSpan(ctx, "seqlogic.validate", attribute.Int("files", len(paths)))
	defer span.End()

	results := make([]error, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range paths {
		g.Go(func() error {
			err := a.decodeFile(gctx, path)
			results[i] = err
			if err != nil {
				a.log.Debug(gctx, "invalid diagram", logging.String("path", path), logging.Err(err))
			}
			// Invalid files are reported, not fatal to the group.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func exportCmd(a *app) *cobra.Command {
	var (
		format string
		nodes  []string
		texts  []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Print a diagram, or a selection of it, as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.load(ctx, args[0])
			if err != nil {
				return err
			}
			s := d.ToStorage()
			if len(nodes) > 0 || len(texts) > 0 {
				s = d.Extract(nodes, texts)
			}

			var data []byte
			switch strings.ToLower(format) {
			case "json":
				data, err = storage.EncodeIndent(s)
			case "yaml", "yml":
				data, err = storage.EncodeYAML(s)
			default:
				return fmt.Errorf("unsupported format %q", format)
			}
			if err != nil {
				return err
			}

			if output != "" {
				return a.fs.WriteFile(ctx, output, data)
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringSliceVar(&nodes, "nodes", nil, "export only these node ids and the wires between them")
	cmd.Flags().StringSliceVar(&texts, "texts", nil, "export only these text ids")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func mergeCmd(a *app) *cobra.Command {
	var seed uint64
	cmd := &cobra.Command{
		Use:   "merge <target> <source|unit:name>",
		Short: "Paste a diagram or a library unit into another diagram",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, source := args[0], args[1]

			var extra []core.Option
			if seed != 0 {
				extra = append(extra, core.WithSeed(seed))
			}
			d, err := a.load(ctx, target, extra...)
			if err != nil {
				return err
			}
			s, err := a.loadSource(ctx, source)
			if err != nil {
				return err
			}

			res := d.Merge(s)
			if err := a.save(ctx, d, target); err != nil {
				return err
			}
			a.touchRecent(ctx, target)

			ui.Good.Fprintf(cmd.OutOrStdout(), "  %s merged %s into %s: %s, %s, %s\n",
				ui.StatusIcon(true), source, fileio.DisplayName(target),
				plural(len(res.Nodes), "node"), plural(len(res.Wires), "wire"), plural(len(res.Texts), "text"))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for the paste offset; 0 picks one at random")
	return cmd
}

// loadSource resolves a merge source: "unit:<name>" names a library unit,
// anything else is a diagram file.
func (a *app) loadSource(ctx context.Context, source string) (model.DiagramStorage, error) {
	if name, ok := strings.CutPrefix(source, "unit:"); ok {
		return units.Load(name)
	}
	data, err := a.fs.ReadFile(ctx, source)
	if err != nil {
		return model.DiagramStorage{}, err
	}
	s, err := storage.Decode(data)
	if err != nil {
		return model.DiagramStorage{}, fmt.Errorf("load %s: %w", source, err)
	}
	if err := storage.Validate(s); err != nil {
		return model.DiagramStorage{}, fmt.Errorf("load %s: %w", source, err)
	}
	return s, nil
}
