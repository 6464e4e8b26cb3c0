package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"orderflow/internal/pipeline"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Store and list reviewer decisions from control-surface workbooks",
	}
	cmd.AddCommand(reviewImportCmd(), reviewListCmd())
	return cmd
}

func reviewImportCmd() *cobra.Command {
	var sheet string
	cmd := &cobra.Command{
		Use:   "import <xlsx>",
		Short: "Read a reviewed control surface and store the lines a reviewer touched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if sheet != "" {
				e.cfg.ControlSurfaceSheet = sheet
			}
			svc := pipeline.NewProcessingService(e.db, e.cfg, e.logger)
			res, err := svc.ImportReviews(data, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d of %d lines (trace %s)\n", res.Stored, res.Lines, res.TraceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "control-surface sheet name (default CONTROL_SURFACE_SHEET)")
	return cmd
}

func reviewListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored review decisions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := e.db.ListReviews(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			fmt.Fprintln(tw, "ID\tSOURCE\tDOC\tLINE\tLANE\tSTATUS\tREVIEWER\tCREATED")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n", r.ID, r.Source, r.DocID, r.LineNo, r.Lane, r.Status, r.Reviewer, r.CreatedAt)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}
