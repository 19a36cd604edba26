package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/formatter"
	"askdata/internal/handlers"
	"askdata/internal/mcpserver"
	"askdata/internal/probe"
	"askdata/internal/schema"
	"askdata/internal/storage/mssql"
	"askdata/internal/storage/postgres"
	"askdata/internal/storage/sqlite"
	"askdata/internal/watch"
)

// withApp runs fn with a ready app and closes it afterwards.
func withApp(cmd *cobra.Command, f *flags, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := setup(ctx, f, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func newLoadCmd(f *flags) *cobra.Command {
	var recursive bool
	var patterns []string
	cmd := &cobra.Command{
		Use:   "load <path>...",
		Short: "Load files or directories into the store",
		Long:  `Load each file (or every supported file in each directory) into its own table and print the rows loaded per table.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				total := map[string]int{}
				for _, p := range args {
					info, err := os.Stat(p)
					if err != nil {
						return fmt.Errorf("load %s: %w", p, err)
					}
					var got map[string]int
					if info.IsDir() {
						got, err = a.cat.LoadDirectory(ctx, p, recursive || a.cfg.Data.Recursive, append(patterns, a.cfg.Data.Patterns...))
					} else {
						got, err = a.cat.LoadFile(ctx, p)
					}
					if err != nil {
						return err
					}
					for k, v := range got {
						total[k] = v
					}
				}
				fmt.Fprint(cmd.OutOrStdout(), mcpserver.FormatLoaded(total))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "base-name glob to load (repeatable)")
	return cmd
}

func newQueryCmd(f *flags) *cobra.Command {
	var mode string
	var debug, asJSON bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question about the loaded data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, ok := formatter.ParseMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q (want standard, executive, research or technical)", mode)
			}
			question := strings.Join(args, " ")
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				ans, err := a.cat.Query(ctx, question, catalog.QueryOptions{Mode: m, Debug: debug})
				out := cmd.OutOrStdout()
				if asJSON && err == nil {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{
						"query_id": ans.QueryID,
						"sql":      ans.SQL,
						"columns":  ans.Columns,
						"rows":     ans.Rows,
					})
				}
				fmt.Fprintln(out, ans.Text)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "response style: standard, executive, research, technical")
	cmd.Flags().BoolVar(&debug, "debug", false, "append SQL, intent and timing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw rows as JSON")
	return cmd
}

func newTablesCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List loaded tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				tables, err := a.cat.ListTables(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tables) == 0 {
					fmt.Fprintln(out, "No tables loaded.")
					return nil
				}
				for _, t := range tables {
					fmt.Fprintf(out, "%s: %d rows, %d columns\n", t.Name, t.RowCount, len(t.Columns))
				}
				return nil
			})
		},
	}
}

func newDescribeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Describe one table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				d, err := a.cat.DescribeTable(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), d.String())
				return nil
			})
		},
	}
}

func newStatsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				st, err := a.cat.Statistics(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), st.String())
				return nil
			})
		},
	}
}

func newServeCmd(f *flags) *cobra.Command {
	var watchDirs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools on stdio",
		Long:  `Serve query, list_tables, describe_table, load_file, statistics and reload as MCP tools over stdin/stdout.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if watchDirs {
					if len(a.cfg.Data.Dirs) == 0 {
						return errors.New("--watch needs data.dirs in the config")
					}
					w, err := watch.New(a.cat, watch.Options{
						Dirs:       a.cfg.Data.Dirs,
						Recursive:  a.cfg.Data.Recursive,
						Extensions: handlers.NewRegistry(a.log).Extensions(),
						Logger:     a.log,
					})
					if err != nil {
						return err
					}
					go func() {
						if err := w.Run(ctx); err != nil {
							a.log.Error("watcher stopped", zap.Error(err))
						}
					}()
				}

				srv := mcpserver.New(a.cat, version, mcpserver.WithLogger(a.log), mcpserver.WithMetrics(a.metrics))
				a.log.Info("serving mcp on stdio", zap.Bool("watch", watchDirs))
				return srv.ServeStdio()
			})
		},
	}
	cmd.Flags().BoolVar(&watchDirs, "watch", false, "reload when files in the data directories change")
	return cmd
}

// probeDialects maps a store kind to the DDL dialect probe renders for.
var probeDialects = map[string]schema.Dialect{
	"sqlite":   sqlite.Dialect{},
	"postgres": postgres.Dialect{},
	"mssql":    mssql.Dialect{},
}

func newProbeCmd(f *flags) *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:   "probe <file>...",
		Short: "Show the tables, DDL and uniqueness a load would produce",
		Long:  `Extract each file and print the inferred schema as DDL for the configured store, without writing anything.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app) error {
				d, ok := probeDialects[a.cfg.Store.Kind]
				if !ok {
					return fmt.Errorf("probe: no dialect for store %q", a.cfg.Store.Kind)
				}
				reg := handlers.NewRegistry(a.log)
				out := cmd.OutOrStdout()
				for _, p := range args {
					results, err := probe.Probe(ctx, reg, p, d, probe.Options{SampleRows: sample})
					if err != nil {
						return fmt.Errorf("probe %s: %w", p, err)
					}
					for _, r := range results {
						fmt.Fprintln(out, r.String())
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&sample, "sample", 1000, "rows examined per table (0 for all)")
	return cmd
}
