package listener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"orderflow/internal"
	"orderflow/internal/config"
	"orderflow/internal/pipeline"
	"orderflow/internal/storage"
)

const (
	debounceDelay = 500 * time.Millisecond
	exportBatch   = 200

	lastCycleKey = "listener_last_cycle"
)

type Service struct {
	db      *storage.DB
	cfg     config.Config
	logger  *slog.Logger
	proc    *pipeline.ProcessingService
	metrics *pipeline.Metrics
}

func NewService(db *storage.DB, cfg config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := pipeline.NewMetrics()
	return &Service{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		proc:    pipeline.NewProcessingService(db, cfg, logger).WithMetrics(metrics),
		metrics: metrics,
	}
}

type ScanResult struct {
	Seen       int
	Registered int
	Skipped    int
}

type CycleResult struct {
	TraceID        string
	Scan           ScanResult
	ProcessedDocs  int
	ProcessedLines int
	Exported       int
}

// Run watches the inbox until ctx is done. A cycle runs at start, on every
// tick, and shortly after the inbox changes.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Require("INBOX_DIR", s.cfg.InboxDir); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.InboxDir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(s.cfg.InboxDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.cfg.InboxDir, err)
	}

	if s.cfg.MetricsAddr != "" {
		stop := s.serveMetrics()
		defer stop()
	}

	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	started := []any{"inbox", s.cfg.InboxDir, "interval", interval}
	if last, err := s.db.GetMetadata(lastCycleKey); err != nil {
		s.logger.Warn("read last cycle time", "error", err)
	} else if last != nil {
		started = append(started, "last_cycle", *last)
	}
	s.logger.Info("listener started", started...)
	s.cycle(ctx)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("listener stopped")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		case <-debounce:
			debounce = nil
			s.cycle(ctx)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pipeline.InputTypeFor(event.Name) == "" {
				continue
			}
			s.logger.Debug("inbox changed", "path", event.Name, "op", event.Op.String())
			debounce = time.After(debounceDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	res, err := s.RunCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("listener cycle failed", "trace_id", res.TraceID, "error", err)
		}
		return
	}
	s.logger.Info("listener cycle done",
		"trace_id", res.TraceID,
		"seen", res.Scan.Seen,
		"registered", res.Scan.Registered,
		"processed", res.ProcessedDocs,
		"lines", res.ProcessedLines,
		"exported", res.Exported,
	)
}

// RunCycle registers new inbox files, routes pending documents and exports
// the processed ones when auto export is on.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{TraceID: uuid.NewString()}
	scan, err := s.Scan()
	if err != nil {
		return res, err
	}
	res.Scan = scan

	batch := s.cfg.ListenerProcessBatch
	if batch <= 0 {
		batch = 20
	}
	res.ProcessedDocs, res.ProcessedLines, err = s.proc.ProcessPending(ctx, batch)
	if err != nil {
		return res, err
	}

	if s.cfg.ListenerAutoExport {
		res.Exported, err = s.exportProcessed()
		if err != nil {
			return res, err
		}
	}
	if err := s.db.SetMetadata(lastCycleKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.logger.Warn("last cycle time not recorded", "trace_id", res.TraceID, "error", err)
	}
	return res, nil
}

// Scan registers every supported inbox file by content hash. A file already
// seen under any name is not registered again.
func (s *Service) Scan() (ScanResult, error) {
	var res ScanResult
	entries, err := os.ReadDir(s.cfg.InboxDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		kind := pipeline.InputTypeFor(name)
		if kind == "" {
			res.Skipped++
			continue
		}
		res.Seen++

		path := filepath.Join(s.cfg.InboxDir, name)
		blob, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("read inbox file", "path", path, "error", err)
			continue
		}
		if len(blob) == 0 {
			// still being written
			continue
		}
		sum := sha256.Sum256(blob)
		doc, created, err := s.db.RegisterDocument(path, name, kind, hex.EncodeToString(sum[:]))
		if err != nil {
			return res, err
		}
		if created {
			res.Registered++
			s.logger.Debug("document registered", "document_id", doc.ID, "name", name, "kind", kind)
		}
	}
	return res, nil
}

func (s *Service) exportProcessed() (int, error) {
	docs, err := s.db.ListDocumentsByStatus(internal.DocumentProcessed, exportBatch)
	if err != nil {
		return 0, err
	}
	outDir := filepath.Join(s.cfg.OutputDir, "listener")
	exported := 0
	for _, doc := range docs {
		path, err := s.proc.ExportDocument(doc, outDir)
		if err != nil {
			return exported, fmt.Errorf("export %s: %w", doc.Name, err)
		}
		s.logger.Debug("control surface written", "document_id", doc.ID, "path", path)
		exported++
	}
	return exported, nil
}

func (s *Service) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	server := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("metrics server", "addr", s.cfg.MetricsAddr, "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", s.cfg.MetricsAddr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
