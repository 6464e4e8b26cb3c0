package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"orderflow/internal/reference"
	"orderflow/internal/snapshot"
)

func referenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reference",
		Aliases: []string{"ref"},
		Short:   "Inspect and edit the reference pack used for grounding",
	}
	cmd.AddCommand(referenceShowCmd())
	cmd.AddCommand(referenceExportCmd())
	cmd.AddCommand(referenceImportCmd())
	cmd.AddCommand(referenceFinalizeCmd())
	cmd.AddCommand(referenceResetCmd())
	return cmd
}

func referenceShowCmd() *cobra.Command {
	var format string
	var counts bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active reference pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			pack := reference.LoadOrEmpty(cmd.Context(), e.db, e.logger)
			if counts {
				fmt.Fprintf(cmd.OutOrStdout(),
					"reference %s manufacturers=%d finishes=%d categories=%d electrified=%d wiring=%d hardware_sets=%d\n",
					pack.Version,
					len(pack.Manufacturers),
					len(pack.Finishes),
					len(pack.Categories),
					len(pack.ElectrifiedDevices),
					len(pack.WiringConfigs),
					len(pack.HardwareSets),
				)
				return nil
			}
			blob, err := pack.Marshal()
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), blob, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json|yaml")
	cmd.Flags().BoolVar(&counts, "counts", false, "print dictionary sizes only")
	return cmd
}

func referenceExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write the active pack as .json, .yaml or a six-sheet .xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			pack := reference.LoadOrEmpty(cmd.Context(), e.db, e.logger)
			path := args[0]
			if strings.EqualFold(filepath.Ext(path), ".xlsx") {
				blob, err := reference.ExportXLSX(pack)
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
				blob, err := pack.Marshal()
				if err != nil {
					return err
				}
				if err := saveSnapshotFile(path, blob); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reference %s exported to %s\n", pack.Version, path)
			return nil
		},
	}
}

func referenceImportCmd() *cobra.Command {
	var bump, note string
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import a pack file or workbook and store it as the active pack",
		Long: `Import replaces the active reference pack. A .json or .yaml file is validated
and stored whole. An .xlsx workbook replaces the six dictionaries and keeps the
version history of the active pack.`,
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

			var pack reference.Pack
			if strings.EqualFold(filepath.Ext(args[0]), ".xlsx") {
				current := reference.LoadOrEmpty(cmd.Context(), e.db, e.logger)
				pack, err = reference.ImportXLSX(data, current)
			} else {
				pack, err = reference.Parse(data)
			}
			if err != nil {
				return err
			}
			if note == "" {
				note = "Imported from " + filepath.Base(args[0])
			}
			return finalizeReference(cmd, e, pack, kind, note)
		},
	}
	cmd.Flags().StringVar(&bump, "bump", "minor", "version bump: major|minor|patch|none")
	cmd.Flags().StringVar(&note, "note", "", "changelog entry")
	return cmd
}

func referenceFinalizeCmd() *cobra.Command {
	var bump, note string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Bump, stamp and re-hash the active reference pack",
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

			pack := reference.LoadOrEmpty(cmd.Context(), e.db, e.logger)
			return finalizeReference(cmd, e, pack, kind, note)
		},
	}
	cmd.Flags().StringVar(&bump, "bump", "patch", "version bump: major|minor|patch|none")
	cmd.Flags().StringVar(&note, "note", "", "changelog entry")
	return cmd
}

func finalizeReference(cmd *cobra.Command, e *env, pack reference.Pack, kind snapshot.BumpKind, note string) error {
	final, err := reference.Finalize(pack, kind, note, time.Now())
	if err != nil {
		return err
	}
	if err := reference.Save(cmd.Context(), e.db, final); err != nil {
		return err
	}
	e.logger.Info("reference pack saved", "version", final.Version, "sha256", final.Hash)
	fmt.Fprintf(cmd.OutOrStdout(), "reference %s saved (sha256 %s)\n", final.Version, final.Hash)
	return nil
}

func referenceResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop the stored pack so grounding falls back to the empty pack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, cleanup, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := e.db.Clear(cmd.Context(), snapshot.ReferenceKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reference reset to empty pack %s\n", reference.BaselineVersion)
			return nil
		},
	}
}
