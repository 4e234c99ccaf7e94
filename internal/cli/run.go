package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/uthreads/internal/workload"
)

func newRunCmd() *cobra.Command {
	var (
		quantum    time.Duration
		maxThreads int
		timeout    time.Duration
		asJSON     bool
		noStore    bool
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scripted thread scenario and record its trace",
		Long: `Runs every thread of the scenario on the preemptive scheduler, records
each scheduling event, stores the run in the local database and prints a
summary. The summary is JSON when stdout is not a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := workload.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("quantum") {
				sc.Quantum = quantum
			}
			if cmd.Flags().Changed("max-threads") {
				sc.MaxThreads = maxThreads
			}
			if verify {
				cfg.Verify = true
			}

			out := cmd.OutOrStdout()
			jsonOut := asJSON || !isTerminal(out)
			scriptOut := out
			if jsonOut {
				scriptOut = cmd.ErrOrStderr()
			}

			sess := &session{cfg: cfg, logger: logger, out: scriptOut}
			if !noStore {
				st, err := openStore(cmd.Context(), cfg.DBPath)
				if err != nil {
					return err
				}
				defer st.Close()
				sess.store = st
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			rep, err := sess.run(ctx, sc)
			if err != nil {
				return fmt.Errorf("run %s: %w", sc.Name, err)
			}
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				printReport(out, rep)
			}
			if rep.ExitCode != 0 {
				return fmt.Errorf("scheduler exited with code %d", rep.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&quantum, "quantum", 0, "Override the scenario quantum")
	cmd.Flags().IntVar(&maxThreads, "max-threads", 0, "Override the scenario thread limit")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop waiting for threads after this long (0 = no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run in the database")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check scheduler invariants after every operation")

	return cmd
}

func printReport(w io.Writer, rep *report) {
	sum := rep.Summary
	if rep.Run.ID != "" {
		fmt.Fprintf(w, "Run:       %s\n", rep.Run.ID)
	}
	fmt.Fprintf(w, "Scenario:  %s\n", sum.Scenario)
	fmt.Fprintf(w, "Quantum:   %s\n", rep.Run.Quantum)
	fmt.Fprintf(w, "Threads:   %d spawned, %d returned", sum.Spawned, sum.Returned)
	if sum.Failed > 0 {
		fmt.Fprintf(w, ", %d failed", sum.Failed)
	}
	if sum.Terminated > 0 {
		fmt.Fprintf(w, ", %d terminated", sum.Terminated)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Quantums:  %s\n", humanize.Comma(int64(sum.TotalQuantums)))
	fmt.Fprintf(w, "Events:    %s", humanize.Comma(int64(rep.Events)))
	if rep.Run.Dropped > 0 {
		fmt.Fprintf(w, " (%s dropped)", humanize.Comma(int64(rep.Run.Dropped)))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Elapsed:   %s\n", sum.Elapsed.Round(time.Millisecond))
	if sum.Stalled {
		fmt.Fprintln(w, "Stalled:   remaining threads were blocked or the run timed out")
	}
	if sum.MainError != "" {
		fmt.Fprintf(w, "Main:      %s\n", sum.MainError)
	}

	fmt.Fprintf(w, "\n%-5s  %-16s  %-10s  %8s\n", "TID", "NAME", "OUTCOME", "QUANTUMS")
	for _, t := range sum.Threads {
		fmt.Fprintf(w, "%-5d  %-16s  %-10s  %8d\n", t.ID, t.Name, t.Outcome, t.Quantums)
		if t.Error != "" {
			fmt.Fprintf(w, "       %s\n", t.Error)
		}
	}
}
