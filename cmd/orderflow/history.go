package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"orderflow/internal/snapshot"
)

func historyCmd() *cobra.Command {
	var (
		key   string
		limit int
		runs  bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved policy and reference snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if runs {
				rows, err := e.db.ListRuns(limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "ID\tTRACE\tDOCUMENT\tPOLICY\tREFERENCE\tCREATED")
				for _, r := range rows {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n", r.ID, r.TraceID, r.DocumentID, r.PolicyVersion, r.ReferenceVersion, r.CreatedAt)
				}
				return nil
			}

			switch key {
			case "policy":
				key = snapshot.PolicyKey
			case "reference", "ref":
				key = snapshot.ReferenceKey
			}
			revs, err := e.db.ListHistory(cmd.Context(), key, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "ID\tKEY\tVERSION\tSHA256\tSAVED")
			for _, r := range revs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Key, r.Version, shortHash(r.Hash), r.SavedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "policy|reference or a raw snapshot key (default all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	cmd.Flags().BoolVar(&runs, "runs", false, "list processing runs instead of snapshots")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
