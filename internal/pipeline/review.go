package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"orderflow/internal"
)

type ReviewImport struct {
	TraceID string
	Lines   int
	Stored  int
}

// ImportReviews reads a reviewed control surface and stores every line a
// reviewer touched. Lines with empty review columns are counted only.
func (s *ProcessingService) ImportReviews(data []byte, source string) (ReviewImport, error) {
	res := ReviewImport{TraceID: uuid.NewString()}
	logger := s.logger.With("trace_id", res.TraceID, "source", source)

	lines, err := ImportControlSurfaceXLSX(data, s.cfg.ControlSurfaceSheet)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", source, err)
	}
	res.Lines = len(lines)

	rows := make([]internal.ReviewRow, 0, len(lines))
	for _, l := range lines {
		if l.Review == (Review{}) {
			continue
		}
		body, err := json.Marshal(l)
		if err != nil {
			return res, err
		}
		rows = append(rows, internal.ReviewRow{
			Source:   source,
			DocID:    l.DocID,
			LineNo:   l.LineNo,
			Lane:     l.Lane,
			Status:   l.Review.Status,
			Reviewer: l.Review.Reviewer,
			Body:     body,
		})
	}
	if err := s.db.InsertReviews(rows); err != nil {
		return res, fmt.Errorf("store reviews: %w", err)
	}
	res.Stored = len(rows)
	logger.Info("reviews imported", "lines", res.Lines, "stored", res.Stored)
	return res, nil
}
