// Package stats is a thin orchestration layer over the event store's
// aggregate operations: it resolves the effective time window and delegates.
package stats

import (
	"context"
	"time"

	"github.com/riakgu/strym/pkg/apperr"
	"github.com/riakgu/strym/pkg/eventstore"
)

// Store is the subset of eventstore.Store the service needs.
type Store interface {
	AggregateSummary(ctx context.Context, tr eventstore.TimeRange, sourceApp string) (eventstore.Summary, error)
	AggregateTimeseries(ctx context.Context, tr eventstore.TimeRange, bucket eventstore.BucketSize, groupBy eventstore.GroupBy, sourceApp string) ([]eventstore.Bucket, error)
}

// Service is the StatsService.
type Service struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// window resolves the effective [start, end] range for a request: when both
// bounds are omitted it defaults to "today UTC midnight to now".
func (s *Service) window(start, end *time.Time) (eventstore.TimeRange, error) {
	now := s.now()
	tr := eventstore.TimeRange{
		Start: time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		End:   now,
	}
	if start != nil {
		tr.Start = start.UTC()
	}
	if end != nil {
		tr.End = end.UTC()
	}
	if tr.End.Before(tr.Start) {
		return eventstore.TimeRange{}, apperr.Validation("end must not be before start")
	}
	return tr, nil
}

// Summary computes the aggregate summary over the resolved window.
func (s *Service) Summary(ctx context.Context, start, end *time.Time, sourceApp string) (eventstore.Summary, error) {
	tr, err := s.window(start, end)
	if err != nil {
		return eventstore.Summary{}, err
	}
	return s.store.AggregateSummary(ctx, tr, sourceApp)
}

// Timeseries computes the bucketed time series over the resolved window.
func (s *Service) Timeseries(ctx context.Context, start, end *time.Time, bucket eventstore.BucketSize, groupBy eventstore.GroupBy, sourceApp string) ([]eventstore.Bucket, error) {
	tr, err := s.window(start, end)
	if err != nil {
		return nil, err
	}
	return s.store.AggregateTimeseries(ctx, tr, bucket, groupBy, sourceApp)
}
