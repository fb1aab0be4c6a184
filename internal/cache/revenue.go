package cache

import (
	"context"

	"caisse/internal/core"
	"caisse/internal/log"
	"caisse/internal/reconcile"
	"caisse/internal/sources"
)

// RevenueSource caches the revenue records of each period in front of
// another source. Failed fetches are not cached.
type RevenueSource struct {
	next   sources.RevenueSource
	cache  Cache[[]core.RevenueRecord]
	logger *log.Logger
}

func NewRevenueSource(next sources.RevenueSource, c Cache[[]core.RevenueRecord], logger *log.Logger) *RevenueSource {
	if logger == nil {
		logger = log.Discard()
	}
	return &RevenueSource{next: next, cache: c, logger: logger.WithComponent(log.ComponentCache)}
}

func (s *RevenueSource) ListRevenue(ctx context.Context, p reconcile.Period) ([]core.RevenueRecord, error) {
	key := p.Key()
	if records, ok := s.cache.Get(key); ok {
		s.logger.DebugContext(ctx, "Revenue cache hit", log.FieldPeriod, key)
		return append([]core.RevenueRecord(nil), records...), nil
	}

	records, err := s.next.ListRevenue(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, append([]core.RevenueRecord(nil), records...))
	return records, nil
}

// Invalidate drops every cached period.
func (s *RevenueSource) Invalidate() {
	s.cache.Purge()
}
