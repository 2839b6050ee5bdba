// Package query serves filtered/paginated reads and full-text search,
// consulting the cache before falling through to the event store.
package query

import (
	"context"
	"time"

	"github.com/riakgu/strym/pkg/eventstore"
	"github.com/riakgu/strym/pkg/logstream"
)

const cacheNamespace = "logs"

// Store is the subset of eventstore.Store the service needs.
type Store interface {
	GetByID(ctx context.Context, id string) (logstream.LogEvent, error)
	Query(ctx context.Context, params eventstore.QueryParams) (eventstore.QueryResult, error)
	Search(ctx context.Context, q, sourceApp string, limit int) ([]eventstore.SearchResult, error)
}

// Cache is the subset of cachestore.Store the service needs.
type Cache interface {
	Get(ctx context.Context, namespace string, params map[string]any, dest any) bool
	Set(ctx context.Context, namespace string, params map[string]any, value any, ttl time.Duration)
}

// Service is the QueryService.
type Service struct {
	store Store
	cache Cache
}

func New(store Store, cache Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Pagination describes a page of results relative to the unpaginated total.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Page is the cached/returned shape of a list query.
type Page struct {
	Logs       []logstream.LogEvent `json:"logs"`
	Pagination Pagination            `json:"pagination"`
}

// Params is the filter/pagination input to Query, validated and defaulted
// by the caller (the gateway) before being passed down.
type Params struct {
	SourceApp  string
	Severities []string
	Search     string
	TraceID    string
	Limit      int
	Offset     int
	Sort       eventstore.Sort
}

func (p Params) cacheKey() map[string]any {
	return map[string]any{
		"source_app": p.SourceApp,
		"severities": p.Severities,
		"search":     p.Search,
		"trace_id":   p.TraceID,
		"limit":      p.Limit,
		"offset":     p.Offset,
		"sort":       string(p.Sort),
	}
}

// Query canonicalizes params, attempts a cache hit under the "logs"
// namespace, and on miss falls through to the event store, populating the
// cache with the result before returning.
func (s *Service) Query(ctx context.Context, params Params) (Page, error) {
	key := params.cacheKey()

	var cached Page
	if s.cache.Get(ctx, cacheNamespace, key, &cached) {
		return cached, nil
	}

	result, err := s.store.Query(ctx, eventstore.QueryParams{
		SourceApp:  params.SourceApp,
		Severities: params.Severities,
		Search:     params.Search,
		TraceID:    params.TraceID,
		Limit:      params.Limit,
		Offset:     params.Offset,
		Sort:       params.Sort,
	})
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Logs: result.Events,
		Pagination: Pagination{
			Total:   result.Total,
			Limit:   params.Limit,
			Offset:  params.Offset,
			HasMore: params.Offset+params.Limit < result.Total,
		},
	}

	s.cache.Set(ctx, cacheNamespace, key, page, 0)
	return page, nil
}

// SearchResult pairs an event with its full-text relevance score.
type SearchResult struct {
	Log   logstream.LogEvent `json:"log"`
	Score float64             `json:"score"`
}

// SearchPage is the response to Search.
type SearchPage struct {
	Results []SearchResult `json:"results"`
	Total   int             `json:"total"`
}

// Search runs a full-text query. Search results are not cached: the score
// is a live ranking artifact, not a stable cache entry.
func (s *Service) Search(ctx context.Context, q, sourceApp string, limit int) (SearchPage, error) {
	rows, err := s.store.Search(ctx, q, sourceApp, limit)
	if err != nil {
		return SearchPage{}, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, row := range rows {
		score := row.Score
		if score == 0 {
			score = 1.0
		}
		results = append(results, SearchResult{Log: row.Event, Score: score})
	}
	return SearchPage{Results: results, Total: len(results)}, nil
}

// GetByID is a direct event store lookup; it bypasses the cache entirely.
func (s *Service) GetByID(ctx context.Context, id string) (logstream.LogEvent, error) {
	return s.store.GetByID(ctx, id)
}
