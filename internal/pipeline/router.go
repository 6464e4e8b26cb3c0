package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"orderflow/internal"
	"orderflow/internal/config"
	"orderflow/internal/policy"
	"orderflow/internal/reference"
)

// Router runs detect, score and route over lines against one policy and one
// reference snapshot. Both are read-only, so batches may fan out.
type Router struct {
	scorer  *Scorer
	engine  *policy.Engine
	workers int
	metrics *Metrics
}

func NewRouter(cfg policy.Config, pack reference.Pack, scoring config.ScoringConfig) *Router {
	return &Router{
		scorer:  NewScorer(scoring, pack),
		engine:  policy.NewEngine(cfg),
		workers: 1,
	}
}

func (r *Router) WithWorkers(n int) *Router {
	if n < 1 {
		n = 1
	}
	r.workers = n
	return r
}

func (r *Router) WithMetrics(m *Metrics) *Router {
	r.metrics = m
	return r
}

func (r *Router) PolicyVersion() string    { return r.engine.Version() }
func (r *Router) ReferenceVersion() string { return r.scorer.ReferenceVersion() }

func (r *Router) RouteLine(line internal.OrderLine, rc policy.Context) internal.RoutedOrderLine {
	flags := DetectEdgeCases(EdgeCaseInputFrom(line))
	ann := r.scorer.Annotate(line)

	routed := internal.RoutedOrderLine{
		OrderLine:        line,
		Grounding:        ann.Grounding,
		ItemClass:        DeriveItemClass(flags, line.ItemNumber),
		EdgeCaseFlags:    flags,
		ConfidenceScore:  ann.Score,
		MatchMethod:      ann.MatchMethod,
		RuleViolations:   ann.Violations,
		ImportReady:      ann.ImportReady,
		ReferenceVersion: r.scorer.ReferenceVersion(),
	}
	routed = r.engine.Route(routed, rc)
	r.metrics.observeLine(routed)
	return routed
}

// RouteBatch keeps input order and cardinality. It fails only when ctx is done.
func (r *Router) RouteBatch(ctx context.Context, lines []internal.OrderLine, rc policy.Context) ([]internal.RoutedOrderLine, error) {
	start := time.Now()
	out := make([]internal.RoutedOrderLine, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range lines {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = r.RouteLine(lines[i], rc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.metrics.observeBatch(time.Since(start))
	return out, nil
}
