package main

import (
	"github.com/spf13/cobra"

	"orderflow/internal/listener"
)

func listenCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Watch INBOX_DIR and route every new document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			svc := listener.NewService(e.db, e.cfg, e.logger)
			if once {
				res, err := svc.RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				e.logger.Info("cycle done",
					"registered", res.Scan.Registered,
					"processed", res.ProcessedDocs,
					"lines", res.ProcessedLines,
					"exported", res.Exported,
				)
				return nil
			}
			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}
