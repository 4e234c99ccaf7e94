package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/uthreads/pkg/model"
)

// runSource is what the listing commands read from: the local database or
// a remote inspector.
type runSource interface {
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error)
}

// openSource returns the inspector client when --server is set, else the
// local store. The returned func releases it.
func openSource(ctx context.Context) (runSource, func(), error) {
	if flagServer != "" {
		return NewClient(flagServer, logger), func() {}, nil
	}
	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

func listFlags(cmd *cobra.Command, opts *model.ListOptions, asJSON *bool) {
	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum number of rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(asJSON, "json", false, "Print JSON")
}

func newRunsCmd() *cobra.Command {
	opts := model.DefaultListOptions()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, closeFn, err := openSource(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			runs, total, err := src.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(out) {
				if runs == nil {
					runs = []*model.Run{}
				}
				return json.NewEncoder(out).Encode(runs)
			}
			printRuns(out, runs, total)
			return nil
		},
	}
	listFlags(cmd, &opts, &asJSON)
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "Only runs of this scenario")
	return cmd
}

func printRuns(w io.Writer, runs []*model.Run, total int) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	fmt.Fprintf(w, "%-40s  %-16s  %-9s  %7s  %10s  %s\n", "ID", "SCENARIO", "STATE", "THREADS", "QUANTUMS", "STARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%-40s  %-16s  %-9s  %7d  %10s  %s\n",
			r.ID, r.Scenario, r.State, r.Threads, humanize.Comma(int64(r.TotalQuantums)), humanize.Time(r.StartedAt))
	}
	if len(runs) < total {
		fmt.Fprintf(w, "\n(%d of %d shown)\n", len(runs), total)
	}
}

func newEventsCmd() *cobra.Command {
	opts := model.DefaultListOptions()
	opts.Limit = 100
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the scheduling trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, closeFn, err := openSource(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			events, total, err := src.ListEvents(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(out) {
				if events == nil {
					events = []model.Event{}
				}
				return json.NewEncoder(out).Encode(events)
			}
			printEvents(out, events, total)
			return nil
		},
	}
	listFlags(cmd, &opts, &asJSON)
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "Only events of this kind (SPAWN, SWITCH, ...)")
	return cmd
}

func printEvents(w io.Writer, events []model.Event, total int) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	fmt.Fprintf(w, "%6s  %-10s  %5s  %5s  %-9s  %8s  %s\n", "SEQ", "KIND", "TID", "PEER", "REASON", "TOTAL", "AT")
	for _, ev := range events {
		fmt.Fprintf(w, "%6d  %-10s  %5d  %5d  %-9s  %8d  %s\n",
			ev.Seq, ev.Kind, ev.TID, ev.Peer, ev.Reason, ev.Total, ev.At.Format(time.StampMilli))
	}
	if len(events) < total {
		fmt.Fprintf(w, "\n(%d of %d shown)\n", len(events), total)
	}
}
