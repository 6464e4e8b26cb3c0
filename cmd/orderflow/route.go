package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"orderflow/internal"
	"orderflow/internal/pipeline"
)

func routeCmd() *cobra.Command {
	var (
		inputType string
		output    string
		phase     string
		customer  string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "route <input>",
		Short: "Route the lines of one document",
		Long: `Route extracts order lines from one document, routes them with the active
policy and reference pack and writes a control-surface workbook.

For --type text and html the argument is the content itself; for every other
type it is a file path. --type auto picks the intake from the file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if phase != "" {
				p, err := internal.ParsePhase(phase)
				if err != nil {
					return err
				}
				e.cfg.RoutingPhase = p
			}
			if customer != "" {
				e.cfg.RoutingCustomer = customer
			}

			lines, err := pipeline.ExtractLinesFromInput(inputType, args[0])
			if err != nil {
				return err
			}
			svc := pipeline.NewProcessingService(e.db, e.cfg, e.logger)
			router := svc.LoadRouter(cmd.Context())
			routed, err := router.RouteBatch(cmd.Context(), lines, svc.RoutingContext())
			if err != nil {
				return err
			}
			summary := internal.Summarize(routed)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"policy_version":    router.PolicyVersion(),
					"reference_version": router.ReferenceVersion(),
					"summary":           summary,
					"lines":             routed,
				})
			}

			if output != "" {
				opts, err := svc.ExportOptions()
				if err != nil {
					return err
				}
				if err := pipeline.ExportControlSurfaceXLSX(routed, output, opts); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "routed %d lines auto=%d assist=%d review=%d block=%d policy=%s reference=%s\n",
				summary.Total,
				summary.ByLane[internal.LaneAuto],
				summary.ByLane[internal.LaneAssist],
				summary.ByLane[internal.LaneReview],
				summary.ByLane[internal.LaneBlock],
				router.PolicyVersion(),
				router.ReferenceVersion(),
			)
			if output != "" {
				fmt.Fprintf(out, "control surface written to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&inputType, "type", "t", "auto", "input type: auto|extraction|xlsx|csv|pdf|email|html|text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "control-surface xlsx path")
	cmd.Flags().StringVar(&phase, "phase", "", "override ROUTING_PHASE (PHASE_1|PHASE_2|PHASE_3)")
	cmd.Flags().StringVar(&customer, "customer", "", "override ROUTING_CUSTOMER")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print routed lines as JSON instead of writing a workbook")
	return cmd
}
