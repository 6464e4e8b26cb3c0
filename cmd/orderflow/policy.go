package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderflow/internal/policy"
	"orderflow/internal/snapshot"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and edit the control-surface routing policy",
	}
	cmd.AddCommand(policyShowCmd())
	cmd.AddCommand(policyLintCmd())
	cmd.AddCommand(policyExportCmd())
	cmd.AddCommand(policyImportCmd())
	cmd.AddCommand(policyFinalizeCmd())
	cmd.AddCommand(policyResetCmd())
	return cmd
}

func policyShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active policy (the compiled-in default when none is stored)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			blob, err := policy.LoadOrDefault(cmd.Context(), e.db, e.logger).Marshal()
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), blob, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json|yaml")
	return cmd
}

func policyLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint [file]",
		Short: "Report semantic problems in a policy file or the active policy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg policy.Config
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				cfg, err = policy.Parse(data)
				if err != nil {
					return err
				}
			} else {
				e, cleanup, err := openEnv(cmd)
				if err != nil {
					return err
				}
				defer cleanup()
				cfg = policy.LoadOrDefault(cmd.Context(), e.db, e.logger)
			}

			findings := policy.Lint(cfg)
			out := cmd.OutOrStdout()
			for _, f := range findings {
				fmt.Fprintln(out, f.String())
			}
			if len(findings) > 0 {
				return fmt.Errorf("policy %s: %d finding(s)", cfg.Meta.Version, len(findings))
			}
			fmt.Fprintf(out, "policy %s: ok\n", cfg.Meta.Version)
			return nil
		},
	}
}

func policyExportCmd() *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Write the active policy as .json, .yaml or a Policy_Rules .xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := policy.LoadOrDefault(cmd.Context(), e.db, e.logger)
			path := args[0]
			if strings.EqualFold(filepath.Ext(path), ".xlsx") {
				var tpl []byte
				if template != "" {
					tpl, err = os.ReadFile(template)
					if err != nil {
						return err
					}
				}
				blob, err := policy.ExportXLSX(cfg, tpl)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(path, blob, 0o644); err != nil {
					return err
				}
			} else {
				blob, err := cfg.Marshal()
				if err != nil {
					return err
				}
				if err := saveSnapshotFile(path, blob); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy %s exported to %s\n", cfg.Meta.Version, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "workbook to write the Policy_Rules sheet into")
	return cmd
}

func policyImportCmd() *cobra.Command {
	var bump, note string
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import a policy file or a Policy_Rules workbook and store it as the active policy",
		Long: `Import replaces the active policy. A .json or .yaml file is validated and
stored whole. An .xlsx workbook replaces only the rules; meta, defaults and the
edge-case vocabulary of the active policy are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := snapshot.ParseBumpKind(bump)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now()
			var cfg policy.Config
			if strings.EqualFold(filepath.Ext(args[0]), ".xlsx") {
				current := policy.LoadOrDefault(cmd.Context(), e.db, e.logger)
				cfg, err = policy.ImportXLSX(data, current, now)
			} else {
				cfg, err = policy.Parse(data)
			}
			if err != nil {
				return err
			}
			for _, f := range policy.Lint(cfg) {
				e.logger.Warn("policy lint", "finding", f.String())
			}
			return finalizePolicy(cmd, e, cfg, kind, note, now)
		},
	}
	cmd.Flags().StringVar(&bump, "bump", "patch", "version bump: major|minor|patch|none")
	cmd.Flags().StringVar(&note, "note", "", "changelog entry")
	return cmd
}

func policyFinalizeCmd() *cobra.Command {
	var bump, note string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Bump, stamp and re-hash the active policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := snapshot.ParseBumpKind(bump)
			if err != nil {
				return err
			}
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := policy.LoadOrDefault(cmd.Context(), e.db, e.logger)
			return finalizePolicy(cmd, e, cfg, kind, note, time.Now())
		},
	}
	cmd.Flags().StringVar(&bump, "bump", "patch", "version bump: major|minor|patch|none")
	cmd.Flags().StringVar(&note, "note", "", "changelog entry")
	return cmd
}

func finalizePolicy(cmd *cobra.Command, e *env, cfg policy.Config, kind snapshot.BumpKind, note string, now time.Time) error {
	final, err := policy.Finalize(cfg, kind, note, now)
	if err != nil {
		return err
	}
	if err := policy.Save(cmd.Context(), e.db, final); err != nil {
		return err
	}
	e.logger.Info("policy saved", "version", final.Meta.Version, "sha256", final.Meta.Hash, "rules", len(final.Rules))
	fmt.Fprintf(cmd.OutOrStdout(), "policy %s saved (sha256 %s)\n", final.Meta.Version, final.Meta.Hash)
	return nil
}

func policyResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop the stored policy so routing falls back to the compiled-in default",
		Long:  "Reset clears the active policy snapshot. History rows are kept for audit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := e.db.Clear(cmd.Context(), snapshot.PolicyKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy reset to default %s\n", policy.DefaultConfig().Meta.Version)
			return nil
		},
	}
}
