package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/me/creativeapis/pkg/model"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show and prune recorded calls",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryShowCmd(), newHistoryPruneCmd())
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	var (
		opts   = model.DefaultListOptions()
		status string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded calls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := historyStore(cmd.Context())
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("history is disabled")
			}
			if opts.Status, err = model.ParseRecordStatus(status); err != nil {
				return err
			}
			recs, total, err := st.ListRecords(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list history: %w", err)
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(w, "No calls recorded.")
				return nil
			}

			fmt.Fprintf(w, "%-8s  %-18s  %-6s  %-8s  %-16s  %s\n", "ID", "OP", "STATUS", "TOOK", "WHEN", "RESULT")
			fmt.Fprintf(w, "%-8s  %-18s  %-6s  %-8s  %-16s  %s\n", "--", "--", "------", "----", "----", "------")
			for _, r := range recs {
				result := r.ImageURL
				if r.SavedTo != "" {
					result = r.SavedTo
				}
				if r.Failed() {
					result = r.ErrorKind + ": " + r.ErrorMessage
				}
				fmt.Fprintf(w, "%-8s  %-18s  %-6s  %-8s  %-16s  %s\n",
					r.ID[:min(8, len(r.ID))], r.Op, r.Status,
					r.Duration.Round(time.Millisecond), humanize.Time(r.CreatedAt), result)
			}
			if shown := opts.Offset + len(recs); shown < total {
				fmt.Fprintf(w, "\n(%d of %d shown)\n", len(recs), total)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Op, "op", "", "Only calls of this operation, e.g. removeBackground")
	f.StringVar(&status, "status", "", "Only ok or failed calls")
	f.IntVar(&opts.Limit, "limit", opts.Limit, "Maximum number of calls")
	f.IntVar(&opts.Offset, "offset", 0, "Skip this many calls")
	f.BoolVar(&asJSON, "json", false, "Print the records as JSON")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one recorded call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := historyStore(cmd.Context())
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("history is disabled")
			}
			rec, err := st.GetRecord(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get record: %w", err)
			}
			if rec == nil {
				return fmt.Errorf("record %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := historyStore(cmd.Context())
			if err != nil {
				return err
			}
			if st == nil {
				return fmt.Errorf("history is disabled")
			}
			cutoff := time.Now().Add(-olderThan)
			n, err := st.DeleteRecordsBefore(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("prune history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from before %s\n",
				english.Plural(int(n), "record", ""), humanize.Time(cutoff))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete records older than this")
	return cmd
}
