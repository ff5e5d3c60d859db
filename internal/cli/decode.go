package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dorsal-lab/vmbundle/internal/collector"
	"github.com/dorsal-lab/vmbundle/internal/config"
	"github.com/dorsal-lab/vmbundle/internal/driver"
	"github.com/dorsal-lab/vmbundle/internal/sink"
	"github.com/dorsal-lab/vmbundle/internal/store"
	"github.com/dorsal-lab/vmbundle/internal/trace"
)

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	*RootOptions
	Output string
	Compat bool
	DB     string
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <tracefile>[:<begin>[-<end>]]",
		Short: "Decode a trace file into context-switch bundles",
		Long: `Decode a processor trace file and correlate context-switch bundles.

The trace argument may carry a byte range after a colon; begin and end
accept decimal or 0x-prefixed hexadecimal. The bundle document is
overwritten on each run.

Example:
  vmbundle decode trace.pt
  vmbundle decode trace.pt:0x1000-0x8000 --output bundles.json --db bundles.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "bundle document path (default bundles.json)")
	cmd.Flags().BoolVar(&opts.Compat, "compat", false, "emit the legacy byte-compatible document framing")
	cmd.Flags().StringVar(&opts.DB, "db", "", "also persist bundles to this SQLite store")

	return cmd
}

func runDecode(opts *DecodeOptions, traceArg string, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	configureLogging(cfg.Verbose)

	format, err := sink.ParseFormat(cfg.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid output format", err)
	}

	slog.Info("loading trace", "arg", traceArg)
	buf, err := trace.Load(traceArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load trace", err)
	}
	slog.Info("trace loaded", "path", buf.Path, "begin", buf.Begin, "bytes", buf.Size())

	// Use the command's context if available (for testing), otherwise
	// start from the background context.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jsonSink := sink.NewJSON(cfg.Output, format)
	sinks := []sink.Sink{jsonSink}

	if cfg.DB != "" {
		st, err := store.Open(cfg.DB)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open bundle store", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing bundle store", "error", closeErr)
			}
		}()

		sess := store.Session{
			ID:         store.NewSessionID(),
			TracePath:  buf.Path,
			RangeBegin: buf.Begin,
			RangeEnd:   buf.Begin + buf.Size(),
			StartedAt:  time.Now(),
		}
		if err := st.CreateSession(ctx, sess); err != nil {
			return WrapExitError(ExitCommandError, "failed to record session", err)
		}
		slog.Info("session recorded", "session", sess.ID, "db", cfg.DB)
		sinks = append(sinks, sink.NewStore(ctx, st, sess.ID))
	}

	out := sink.Multi(sinks...)
	if err := out.Open(); err != nil {
		return WrapExitError(ExitCommandError, "failed to open bundle document", err)
	}

	// Run first, close after: a failed run still gets a properly framed
	// document holding the bundles completed before the failure.
	runErr := driver.Run(ctx, trace.NewDecoder(buf), collector.New(), out)
	if closeErr := out.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bundles to %s\n", jsonSink.Count(), cfg.Output)

	if runErr != nil {
		if ctx.Err() != nil && runErr == ctx.Err() {
			return WrapExitError(ExitFailure, "decode interrupted", runErr)
		}
		return WrapExitError(ExitFailure, "decode failed", runErr)
	}
	return nil
}

// resolveConfig merges the config file (if any) with command-line flags.
// Flags that were explicitly set win over file values.
func resolveConfig(opts *DecodeOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("output") {
		cfg.Output = opts.Output
	}
	if cmd.Flags().Changed("compat") && opts.Compat {
		cfg.Format = "compat"
	}
	if cmd.Flags().Changed("db") {
		cfg.DB = opts.DB
	}
	if opts.Verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}
