package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dorsal-lab/vmbundle/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	DB       string
	Session  string
	Root     string
	Limit    int
	Sessions bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query a bundle store",
		Long: `Query bundles persisted by previous decode runs.

Example:
  vmbundle query --db bundles.db
  vmbundle query --db bundles.db --root 0x1a4000 --limit 10
  vmbundle query --db bundles.db --sessions`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite bundle store (required)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "restrict to one decode session")
	cmd.Flags().StringVar(&opts.Root, "root", "", "restrict to bundles with this context root address")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of bundles to return (0 = all)")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list decode sessions instead of bundles")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// bundleRow is the JSON shape of one queried bundle.
type bundleRow struct {
	ID      string `json:"id"`
	Session string `json:"session"`
	Seq     int64  `json:"seq"`
	Offset  uint64 `json:"offset"`
	Root    string `json:"root"`
	RootNR  uint32 `json:"nr"`
	Base    string `json:"vmcs_base"`
	TSC     string `json:"tsc"`
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	st, err := store.Open(opts.DB)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open bundle store", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Sessions {
		return listSessions(ctx, st, opts, cmd)
	}

	filter := store.BundleFilter{
		SessionID: opts.Session,
		Limit:     opts.Limit,
	}
	if opts.Root != "" {
		root, err := strconv.ParseUint(opts.Root, 0, 64)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("bad root address %q", opts.Root), err)
		}
		filter.Root = root
		filter.HasRoot = true
	}

	records, err := st.ReadBundles(ctx, filter)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		rows := make([]bundleRow, len(records))
		for i, rec := range records {
			rows[i] = bundleRow{
				ID:      rec.ID,
				Session: rec.SessionID,
				Seq:     rec.Seq,
				Offset:  rec.Offset,
				Root:    fmt.Sprintf("%#x", rec.Root),
				RootNR:  rec.RootNR,
				Base:    fmt.Sprintf("%#x", rec.Base),
				TSC:     fmt.Sprintf("%#x", rec.TSC),
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Fprintf(out, "%-5s %-10s %-18s %-3s %-18s %-18s\n",
		"SEQ", "OFFSET", "ROOT", "NR", "VMCS", "TSC")
	for _, rec := range records {
		fmt.Fprintf(out, "%-5d %#-10x %#-18x %-3d %#-18x %#-18x\n",
			rec.Seq, rec.Offset, rec.Root, rec.RootNR, rec.Base, rec.TSC)
	}
	fmt.Fprintf(out, "%d bundles\n", len(records))
	return nil
}

func listSessions(ctx context.Context, st *store.Store, opts *QueryOptions, cmd *cobra.Command) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	for _, sess := range sessions {
		fmt.Fprintf(out, "%s  %s [%#x-%#x] started %s\n",
			sess.ID, sess.TracePath, sess.RangeBegin, sess.RangeEnd,
			sess.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "%d sessions\n", len(sessions))
	return nil
}
