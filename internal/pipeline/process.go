package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"orderflow/internal"
	"orderflow/internal/config"
	"orderflow/internal/policy"
	"orderflow/internal/reference"
	"orderflow/internal/storage"
)

type ProcessingService struct {
	db      *storage.DB
	cfg     config.Config
	logger  *slog.Logger
	metrics *Metrics
}

func NewProcessingService(db *storage.DB, cfg config.Config, logger *slog.Logger) *ProcessingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingService{db: db, cfg: cfg, logger: logger}
}

func (s *ProcessingService) WithMetrics(m *Metrics) *ProcessingService {
	s.metrics = m
	return s
}

type ProcessResult struct {
	DocumentID int
	TraceID    string
	Processed  int
	Summary    internal.BatchSummary
}

func (s *ProcessingService) RoutingContext() policy.Context {
	return policy.Context{Phase: s.cfg.RoutingPhase, CustomerName: s.cfg.RoutingCustomer}
}

// LoadRouter reads the current policy and reference snapshots. A cycle uses one
// router throughout, so a concurrent admin save never splits a batch.
func (s *ProcessingService) LoadRouter(ctx context.Context) *Router {
	cfg := policy.LoadOrDefault(ctx, s.db, s.logger)
	pack := reference.LoadOrEmpty(ctx, s.db, s.logger)
	return NewRouter(cfg, pack, s.cfg.Scoring).
		WithWorkers(s.cfg.RoutingWorkers).
		WithMetrics(s.metrics)
}

func (s *ProcessingService) ProcessByID(ctx context.Context, id int) (ProcessResult, error) {
	doc, err := s.db.MustDocumentByID(id)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessDocument(ctx, s.LoadRouter(ctx), doc)
}

// ProcessPending handles up to limit fetched documents. A failing document is
// marked failed and the rest still run; only a cancelled ctx stops the cycle.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit int) (int, int, error) {
	pending, err := s.db.ListDocumentsByStatus(internal.DocumentFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	router := s.LoadRouter(ctx)
	processedDocs := 0
	processedLines := 0
	for _, doc := range pending {
		if err := ctx.Err(); err != nil {
			return processedDocs, processedLines, err
		}
		res, err := s.ProcessDocument(ctx, router, doc)
		if err != nil {
			if ctx.Err() != nil {
				return processedDocs, processedLines, ctx.Err()
			}
			s.logger.Warn("document failed", "document_id", doc.ID, "name", doc.Name, "error", err)
			continue
		}
		processedDocs++
		processedLines += res.Processed
	}
	return processedDocs, processedLines, nil
}

func (s *ProcessingService) ProcessDocument(ctx context.Context, router *Router, doc internal.DocumentRow) (ProcessResult, error) {
	start := time.Now()
	trace := uuid.NewString()
	logger := s.logger.With("trace_id", trace, "document_id", doc.ID)

	fail := func(err error) (ProcessResult, error) {
		if serr := s.db.UpdateDocumentStatus(doc.ID, internal.DocumentFailed, err.Error()); serr != nil {
			logger.Warn("document status not updated", "error", serr)
		}
		s.recordRun(logger, internal.RunRow{
			TraceID:          trace,
			DocumentID:       doc.ID,
			PolicyVersion:    router.PolicyVersion(),
			ReferenceVersion: router.ReferenceVersion(),
			Timings:          map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
			Counts:           map[string]int{"extracted": 0},
		})
		s.metrics.observeDocument(internal.DocumentFailed)
		return ProcessResult{DocumentID: doc.ID, TraceID: trace}, err
	}

	blob, err := os.ReadFile(doc.Path)
	if err != nil {
		return fail(err)
	}
	lines, err := linesFromBlob(doc.Kind, doc.Path, blob)
	if err != nil {
		return fail(fmt.Errorf("extract %s: %w", doc.Name, err))
	}
	extracted := time.Now()

	routed, err := router.RouteBatch(ctx, lines, s.RoutingContext())
	if err != nil {
		// cancellation leaves the document pending for the next cycle
		return ProcessResult{DocumentID: doc.ID, TraceID: trace}, err
	}
	routedAt := time.Now()

	if err := s.db.ReplaceRoutedLines(doc.ID, routed); err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateDocumentStatus(doc.ID, internal.DocumentProcessed, ""); err != nil {
		return ProcessResult{}, err
	}

	summary := internal.Summarize(routed)
	counts := map[string]int{"extracted": len(lines)}
	for lane, n := range summary.ByLane {
		counts[string(lane)] = n
	}
	s.recordRun(logger, internal.RunRow{
		TraceID:          trace,
		DocumentID:       doc.ID,
		PolicyVersion:    router.PolicyVersion(),
		ReferenceVersion: router.ReferenceVersion(),
		Timings: map[string]float64{
			"extractMs": float64(extracted.Sub(start).Milliseconds()),
			"routeMs":   float64(routedAt.Sub(extracted).Milliseconds()),
			"totalMs":   float64(time.Since(start).Milliseconds()),
		},
		Counts: counts,
	})
	s.metrics.observeDocument(internal.DocumentProcessed)

	logger.Info("document routed",
		"name", doc.Name,
		"lines", len(routed),
		"auto", summary.ByLane[internal.LaneAuto],
		"assist", summary.ByLane[internal.LaneAssist],
		"review", summary.ByLane[internal.LaneReview],
		"block", summary.ByLane[internal.LaneBlock],
		"policy_version", router.PolicyVersion(),
		"reference_version", router.ReferenceVersion(),
	)

	return ProcessResult{DocumentID: doc.ID, TraceID: trace, Processed: len(routed), Summary: summary}, nil
}

// recordRun stores the run row. A failure is logged and never fails the document.
func (s *ProcessingService) recordRun(logger *slog.Logger, run internal.RunRow) {
	if err := s.db.InsertRun(run); err != nil {
		logger.Warn("run not recorded", "error", err)
	}
}

// ExportOptions builds export settings from config, reading the template when one is set.
func (s *ProcessingService) ExportOptions() (ExportOptions, error) {
	opts := ExportOptions{Sheet: s.cfg.ControlSurfaceSheet, StartRow: s.cfg.ControlSurfaceStartRow}
	if s.cfg.ControlSurfaceTemplate != "" {
		blob, err := os.ReadFile(s.cfg.ControlSurfaceTemplate)
		if err != nil {
			return ExportOptions{}, fmt.Errorf("read template: %w", err)
		}
		opts.Template = blob
	}
	return opts, nil
}

// ExportDocument writes the routed lines of doc to outputDir and marks it exported.
func (s *ProcessingService) ExportDocument(doc internal.DocumentRow, outputDir string) (string, error) {
	rows, err := s.db.GetRoutedLines(doc.ID)
	if err != nil {
		return "", err
	}
	opts, err := s.ExportOptions()
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))
	out := filepath.Join(outputDir, fmt.Sprintf("%d-%s-control-surface.xlsx", doc.ID, stem))
	if err := ExportControlSurfaceXLSX(rows, out, opts); err != nil {
		return "", err
	}
	if err := s.db.UpdateDocumentStatus(doc.ID, internal.DocumentExported, ""); err != nil {
		return "", err
	}
	return out, nil
}
