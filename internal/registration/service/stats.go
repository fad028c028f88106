package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"feria/internal/registration/models"
	dErrors "feria/pkg/domain-errors"
	"feria/pkg/requestcontext"
)

// Stats returns the registration summary. The cache, when configured, is
// consulted first; cache failures are logged and the store is used instead.
func (s *Service) Stats(ctx context.Context) (*models.Summary, error) {
	if cached, ok := s.cachedStats(ctx); ok {
		return cached, nil
	}
	generation, cacheable := s.statsGeneration(ctx)

	var (
		summary *models.Summary
		err     error
	)
	for attempt := 0; attempt < maxStatsAttempts; attempt++ {
		summary, err = s.aggregate(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to compute statistics")
		}
		if consistent(summary) {
			break
		}
	}
	// por_estado must sum to the total even when every attempt raced a write
	summary.Total = sumCounts(summary.ByState)

	if cacheable {
		if err := s.cache.Set(ctx, summary, generation); err != nil {
			s.logger.WarnContext(ctx, "failed to cache statistics",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	return summary, nil
}

// maxStatsAttempts bounds recomputation when a concurrent write lands between
// the three aggregate queries.
const maxStatsAttempts = 3

// aggregate runs the three store aggregations concurrently.
func (s *Service) aggregate(ctx context.Context) (*models.Summary, error) {
	var (
		total    int
		byState  map[models.State]int
		bySector map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.records.Count(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		byState, err = s.records.CountByState(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		bySector, err = s.records.CountBySector(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &models.Summary{
		Total:    total,
		ByState:  make(map[string]int, len(byState)),
		BySector: bySector,
	}
	for state, n := range byState {
		summary.ByState[string(state)] = n
	}
	if summary.BySector == nil {
		summary.BySector = map[string]int{}
	}
	return summary, nil
}

// consistent reports whether both breakdowns account for every record. Each
// record lands in exactly one state and one sector bucket.
func consistent(summary *models.Summary) bool {
	return sumCounts(summary.ByState) == summary.Total && sumCounts(summary.BySector) == summary.Total
}

func sumCounts(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func (s *Service) cachedStats(ctx context.Context) (*models.Summary, bool) {
	if s.cache == nil {
		return nil, false
	}
	summary, ok, err := s.cache.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read cached statistics",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, false
	}
	return summary, ok
}

// statsGeneration reads the cache generation before aggregating. A summary is
// only cached when this read succeeded.
func (s *Service) statsGeneration(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	generation, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to read statistics cache generation",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return 0, false
	}
	return generation, true
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached statistics",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
