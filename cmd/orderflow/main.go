package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"orderflow/internal/config"
	"orderflow/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orderflow",
		Short: "Route order lines into automation lanes under a versioned policy",
		Long: `orderflow reads purchase orders, sales orders and credit memos, grounds each
line against the reference pack, flags edge cases and routes it to AUTO,
ASSIST, REVIEW or BLOCK under the active control-surface policy.

Configuration comes from the environment (and .env when present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(routeCmd())
	root.AddCommand(policyCmd())
	root.AddCommand(referenceCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(listenCmd())
	root.AddCommand(reviewCmd())
	return root
}

type env struct {
	cfg    config.Config
	logger *slog.Logger
	db     *storage.DB
}

func openEnv(cmd *cobra.Command) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}
	return &env{cfg: cfg, logger: logger, db: db}, cleanup, nil
}

// writeSnapshot prints a JSON snapshot as-is or converted to YAML.
func writeSnapshot(w io.Writer, blob []byte, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		_, err := fmt.Fprintln(w, string(blob))
		return err
	case "yaml", "yml":
		var doc any
		if err := json.Unmarshal(blob, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// saveSnapshotFile writes blob to path, as YAML when the extension asks for it.
func saveSnapshotFile(path string, blob []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	if err := writeSnapshot(f, blob, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
