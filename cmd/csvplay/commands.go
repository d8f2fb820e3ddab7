package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/vegasq/csvplay/output"
	"github.com/vegasq/csvplay/queryspec"
	"github.com/vegasq/csvplay/reader"
	"github.com/vegasq/csvplay/server"
	"github.com/vegasq/csvplay/table"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:                "csvplay",
		Short:              "Query CSV data with scripted select, where, group, order and join stages",
		Version:            version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.shutdown,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.statePath, "state", "", "state file (overrides CSVPLAY_STATE_PATH; :memory: keeps nothing)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.dialect, "dialect", "", "script dialect: js or cel")

	root.AddCommand(
		loadCmd(a),
		showCmd(a),
		setCmd(a),
		selectCmd(a),
		joinCmd(a),
		runCmd(a),
		saveCmd(a),
		savedCmd(a),
		resetCmd(a),
		serveCmd(a),
		schemaCmd(),
	)
	return root
}

func loadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Load a CSV file, a parquet file or a parquet glob as the data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := reader.LoadText(args[0])
			if err != nil {
				return err
			}
			if err := a.ws.SetCSV(text); err != nil {
				return fmt.Errorf("source loaded but not parsable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows\n", a.ws.RowCount())
			return nil
		},
	}
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current query and sort text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(a.ws.Query(), "", "  ")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, string(data))
			if sort := a.ws.SortText(); sort != "" {
				fmt.Fprintf(out, "sort: %s\n", sort)
			}
			return nil
		},
	}
}

// fieldSetters maps the scalar fields accepted by "set".
var fieldSetters = map[string]func(e *queryspec.Editor, value string) error{
	"where":  func(e *queryspec.Editor, v string) error { e.SetWhere(v); return nil },
	"group":  func(e *queryspec.Editor, v string) error { e.SetGroup(v); return nil },
	"order":  func(e *queryspec.Editor, v string) error { e.SetOrder(v); return nil },
	"limit":  func(e *queryspec.Editor, v string) error { e.SetLimit(v); return nil },
	"having": func(e *queryspec.Editor, v string) error { e.SetHaving(v); return nil },
	"distinct": func(e *queryspec.Editor, v string) error {
		on, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("distinct must be true or false: %w", err)
		}
		e.SetIsDistinct(on)
		return nil
	},
}

func setCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <where|group|order|limit|distinct|having|sort> [text]",
		Short: "Set one query field; omitting the text clears it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := strings.ToLower(args[0])
			value := ""
			if len(args) == 2 {
				value = args[1]
			}

			if field == "sort" {
				a.ws.SetSortText(value)
				return nil
			}

			setter, ok := fieldSetters[field]
			if !ok {
				return fmt.Errorf("unknown field %q", args[0])
			}

			var err error
			a.ws.Edit(func(e *queryspec.Editor) { err = setter(e, value) })
			return err
		},
	}
}

func selectCmd(a *app) *cobra.Command {
	var (
		remove bool
		rename string
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "select <alias> [definition]",
		Short: "Add or change a select entry; without a definition the alias names a column",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]

			var k queryspec.SelectKind
			switch kind {
			case "", "auto":
			case string(queryspec.KindColumn), string(queryspec.KindExpr):
				k = queryspec.SelectKind(kind)
			default:
				return fmt.Errorf("unknown kind %q", kind)
			}

			a.ws.Edit(func(e *queryspec.Editor) {
				e.SetSelect(func(s queryspec.Selection) queryspec.Selection {
					switch {
					case remove:
						return s.Remove(alias)
					case rename != "":
						return s.Rename(alias, rename)
					case len(args) == 2:
						return s.Set(alias, args[1]).WithKind(alias, k)
					default:
						return s.Add(alias).WithKind(alias, k)
					}
				})
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "remove the entry")
	cmd.Flags().StringVar(&rename, "rename", "", "rename the entry")
	cmd.Flags().StringVar(&kind, "kind", "", "how the definition is read: auto, column or expr")
	return cmd
}

func joinCmd(a *app) *cobra.Command {
	var remove int

	cmd := &cobra.Command{
		Use:   "join [body]",
		Short: "Append a join body, or remove one with --remove",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("remove") {
				a.ws.Edit(func(e *queryspec.Editor) { e.RemoveJoin(remove) })
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("join body required")
			}
			a.ws.Edit(func(e *queryspec.Editor) { e.AddJoin(args[0]) })
			return nil
		},
	}

	cmd.Flags().IntVar(&remove, "remove", -1, "index of the join to remove")
	return cmd
}

func runCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the current query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return f.Format(a.ws.Results().Rows)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatTable, "output format: table, csv, json")
	return cmd
}

func saveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name>",
		Short: "Save the current query under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.ws.SaveQuery(args[0]) {
				return fmt.Errorf("name is required")
			}
			return nil
		},
	}
}

func savedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "List saved queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i, s := range a.ws.Saved() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, s.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "apply <index|name>",
			Short: "Make a saved query current",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				i, err := savedIndex(a, args[0])
				if err != nil {
					return err
				}
				if !a.ws.ApplySaved(i) {
					return fmt.Errorf("no saved query %s", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <index|name>",
			Short: "Delete a saved query",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				i, err := savedIndex(a, args[0])
				if err != nil {
					return err
				}
				if !a.ws.RemoveSaved(i) {
					return fmt.Errorf("no saved query %s", args[0])
				}
				return nil
			},
		},
	)
	return cmd
}

// savedIndex resolves an index or the name of the newest matching entry.
func savedIndex(a *app, arg string) (int, error) {
	if i, err := strconv.Atoi(arg); err == nil {
		return i, nil
	}
	for i, s := range a.ws.Saved() {
		if s.Name == arg {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no saved query named %q", arg)
}

func resetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the current query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.ws.Reset()
			return nil
		},
	}
}

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.New(a.ws, a.log).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides CSVPLAY_SERVER_ADDR)")
	return cmd
}

func schemaCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "schema <file.parquet>",
		Short: "Describe the columns of a parquet file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cols, err := reader.Describe(args[0])
			if err != nil {
				return err
			}

			rows := make([]table.Row, len(cols))
			for i, c := range cols {
				rows[i] = table.NewRow(
					"name", c.Name,
					"type", c.Type,
					"physical_type", c.Physical,
					"logical_type", c.Logical,
					"optional", c.Optional,
					"repeated", c.Repeated,
				)
			}

			f, err := output.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return f.Format(rows)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatTable, "output format: table, csv, json")

	// Reads the file only; no workspace is opened.
	noop := func(*cobra.Command, []string) error { return nil }
	cmd.PersistentPreRunE = noop
	cmd.PersistentPostRunE = noop
	return cmd
}
