package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/frame"
	"github.com/schaumb/streamlit/pkg/logger"
	"github.com/schaumb/streamlit/pkg/session"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var a *app

	root := &cobra.Command{
		Use:   "stconn",
		Short: "stconn - inspect and query the data connections of an app",
		Long: `stconn reads the app's secrets file and opens the connections it describes
with the registered adapters. It can list, check and query connections and look
up message translations.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			a, err = newApp(cmd.Context(), flags)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.close(context.WithoutCancel(cmd.Context()))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to the config file (default: stconn.yaml if present)")
	pf.StringVar(&flags.secrets, "secrets", "", "Path to the secrets file (overrides secrets.path)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&flags.trace, "trace", false, "Export trace spans to the configured output")

	getApp := func() *app { return a }
	root.AddCommand(
		newVersionCmd(),
		newAdaptersCmd(),
		newConnectionsCmd(getApp),
		newCheckCmd(getApp),
		newQueryCmd(getApp),
		newWatchCmd(getApp),
		newTranslateCmd(getApp),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "stconn v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newAdaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List available adapters",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			catalog := connection.DefaultCatalog()
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Adapter", "Aliases"})
			for _, key := range catalog.List() {
				t.AppendRow(table.Row{key, strings.Join(catalog.Aliases(key), ", ")})
			}
			t.Render()
		},
	}
}

func newConnectionsCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "List the connections configured in the secrets file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			store, err := a.secretsStore()
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Connection", "Adapter", "Fields"})
			for _, name := range store.Connections() {
				d, err := store.Connection(name)
				if err != nil {
					t.AppendRow(table.Row{name, "", err.Error()})
					continue
				}
				t.AppendRow(table.Row{name, d.Adapter, len(d.Params)})
			}
			t.Render()
			return nil
		},
	}
}

func newCheckCmd(getApp func() *app) *cobra.Command {
	var params map[string]string

	cmd := &cobra.Command{
		Use:   "check NAME",
		Short: "Connect to a connection and report whether it is live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			reg, err := a.connections()
			if err != nil {
				return err
			}
			start := time.Now()
			if _, err := reg.Connect(cmd.Context(), args[0], kwargs(params)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: connected in %s\n", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Override a secrets field (key=value), repeatable")
	return cmd
}

func newQueryCmd(getApp func() *app) *cobra.Command {
	var (
		params   map[string]string
		format   string
		compress string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "query NAME QUERY",
		Short: "Run a query on a connection and print the result",
		Long: `Run a query on a connection and print the result as a frame.

The query language depends on the adapter: SQL for database adapters, a
"db.collection {filter}" for mongodb, a "bucket/prefix" for gcs and s3, and
"topic[:partition] [limit]" for kafka.

Example:
  stconn query warehouse "SELECT name, total FROM orders LIMIT 10" --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			reg, err := a.connections()
			if err != nil {
				return err
			}
			ctx := logger.ContextWithConnection(cmd.Context(), args[0])
			f, err := reg.Query(ctx, args[0], kwargs(params), args[1])
			if err != nil {
				return err
			}

			write := func(w io.Writer) error {
				return f.Write(w, frame.Format(format), frame.Compression(compress))
			}
			if outPath == "" {
				err = write(cmd.OutOrStdout())
			} else {
				err = writeOutput(outPath, write)
			}
			if err != nil {
				return err
			}
			logger.WithContext(ctx).Debug("query finished",
				zap.Int("rows", f.NumRows()),
				zap.Int("columns", f.NumCols()))
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Override a secrets field (key=value), repeatable")
	cmd.Flags().StringVarP(&format, "format", "f", string(frame.FormatTable), "Output format (table, json, csv, avro)")
	cmd.Flags().StringVar(&compress, "compress", string(frame.CompressionNone), "Output compression (none, gzip, zstd, lz4)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the result to a file instead of stdout")
	return cmd
}

func newWatchCmd(getApp func() *app) *cobra.Command {
	var (
		params   map[string]string
		interval time.Duration
		count    int
	)

	cmd := &cobra.Command{
		Use:   "watch NAME",
		Short: "Check a connection repeatedly, reconnecting when it goes stale",
		Long: `Check a connection repeatedly. Each round reuses the cached handle while it is
live and rebuilds it once when the liveness check fails. With metrics enabled the
Prometheus endpoint is served while watching.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return errors.Newf(errors.ErrorTypeValidation, "--interval must be positive, got %s", interval)
			}
			a := getApp()
			reg, err := a.connections()
			if err != nil {
				return err
			}
			a.serveMetrics()

			ctx := cmd.Context()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for i := 0; count <= 0 || i < count; i++ {
				if i > 0 {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
				status := "live"
				if _, err := reg.Connect(ctx, args[0], kwargs(params)); err != nil {
					status = "error: " + err.Error()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", time.Now().Format(time.RFC3339), args[0], status)
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Override a secrets field (key=value), repeatable")
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "Time between checks")
	cmd.Flags().IntVar(&count, "count", 0, "Number of checks (0 = until interrupted)")
	return cmd
}

func newTranslateCmd(getApp func() *app) *cobra.Command {
	var lang string

	cmd := &cobra.Command{
		Use:   "translate MESSAGE",
		Short: "Translate a message with the app's locale catalogs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if lang == "" {
				lang = a.cfg.Locale.Language
			}
			rc := session.NewRunContext(session.WithLanguage(lang))
			ctx := session.WithRunContext(cmd.Context(), rc)
			fmt.Fprintln(cmd.OutOrStdout(), a.translator().Gettext(ctx, args[0]))
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Session language (default: locale.language)")
	return cmd
}

// createOutput opens the file given with --out. Tests replace it.
var createOutput = func(path string) (io.WriteCloser, error) {
	return os.Create(path) //nolint:gosec // path given by the operator
}

// writeOutput writes to the file at path. A failed close is reported, since
// buffered data may not have reached the disk.
func writeOutput(path string, write func(io.Writer) error) error {
	file, err := createOutput(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").WithDetail("path", path)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file").WithDetail("path", path)
	}
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func kwargs(params map[string]string) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
