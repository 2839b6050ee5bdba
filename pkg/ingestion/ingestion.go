// Package ingestion validates and accepts incoming log events, fanning
// them out to persistence, cache invalidation, and the cross-instance bus.
package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/riakgu/strym/pkg/apperr"
	"github.com/riakgu/strym/pkg/logstream"
)

const cacheNamespace = "logs"

// Store is the subset of eventstore.Store the pipeline needs.
type Store interface {
	Insert(ctx context.Context, event logstream.LogEvent) (logstream.LogEvent, error)
}

// Bus is the subset of eventbus.Bus the pipeline needs.
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
}

// Cache is the subset of cachestore.Store the pipeline needs.
type Cache interface {
	InvalidatePrefix(ctx context.Context, namespace string) int
}

// LocalFanout receives events the bus failed to publish, so they still
// reach this instance's own subscribers (the bus's local-only degrade
// path).
type LocalFanout interface {
	Fanout(event logstream.LogEvent, encode func(subscriptionID string, event logstream.LogEvent) any)
}

// Pipeline is the IngestionPipeline: validate, persist, invalidate cache,
// publish.
type Pipeline struct {
	store Store
	cache Cache
	bus   Bus
	local LocalFanout
}

func New(store Store, cache Cache, bus Bus, local LocalFanout) *Pipeline {
	return &Pipeline{store: store, cache: cache, bus: bus, local: local}
}

// Result is the response to a single ingest.
type Result struct {
	ID        string
	Timestamp time.Time
	CreatedAt time.Time
}

// Ingest validates event, persists it, invalidates the query cache, and
// publishes it to the bus (falling back to local-only fanout if the bus
// publish fails).
func (p *Pipeline) Ingest(ctx context.Context, event logstream.LogEvent) (Result, error) {
	if err := Validate(event); err != nil {
		return Result{}, err
	}

	stored, err := p.store.Insert(ctx, event)
	if err != nil {
		return Result{}, err
	}

	p.cache.InvalidatePrefix(ctx, cacheNamespace)
	p.publish(ctx, stored)

	return Result{ID: stored.ID, Timestamp: stored.Timestamp, CreatedAt: stored.CreatedAt}, nil
}

// BulkError is one rejected item of a bulk ingest, by its index in the
// submitted slice.
type BulkError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BulkResult is the response to a bulk ingest.
type BulkResult struct {
	Accepted int
	Rejected int
	Errors   []BulkError
	BatchID  string
}

// IngestBulk accepts events independently: one bad event does not fail the
// batch. Cache is invalidated once if anything was accepted; each accepted
// event is then published individually.
func (p *Pipeline) IngestBulk(ctx context.Context, events []logstream.LogEvent, batchID string) BulkResult {
	result := BulkResult{BatchID: batchID}
	var accepted []logstream.LogEvent

	for i, event := range events {
		if err := Validate(event); err != nil {
			result.Errors = append(result.Errors, BulkError{Index: i, Error: err.Error()})
			continue
		}
		stored, err := p.store.Insert(ctx, event)
		if err != nil {
			result.Errors = append(result.Errors, BulkError{Index: i, Error: err.Error()})
			continue
		}
		result.Accepted++
		accepted = append(accepted, stored)
	}
	result.Rejected = len(result.Errors)

	if result.Accepted > 0 {
		p.cache.InvalidatePrefix(ctx, cacheNamespace)
	}
	for _, stored := range accepted {
		p.publish(ctx, stored)
	}

	return result
}

// publish hands stored to the bus; on publish failure it falls back to
// delivering directly to this instance's own SubscriptionRegistry, logging
// the degrade rather than surfacing it to the ingestion caller (the write
// itself already succeeded).
func (p *Pipeline) publish(ctx context.Context, stored logstream.LogEvent) {
	payload, err := json.Marshal(stored)
	if err != nil {
		slog.Error("failed to marshal event for publish", "id", stored.ID, "error", err)
		return
	}

	if err := p.bus.Publish(ctx, payload); err != nil {
		slog.Warn("eventbus publish failed, delivering locally only", "id", stored.ID, "error", err)
		p.local.Fanout(stored, logstream.EncodeLogMessage)
	}
}

const (
	maxAppIDLen = 128
	maxHostLen  = 256
)

// Validate checks severity, required fields, and length bounds.
func Validate(event logstream.LogEvent) error {
	if !event.Severity.Valid() {
		return apperr.Validation("severity must be one of debug, info, warn, error, fatal")
	}
	if event.Source.AppID == "" {
		return apperr.Validation("source.app_id is required")
	}
	if len(event.Source.AppID) > maxAppIDLen {
		return apperr.Validation("source.app_id must be at most %d characters", maxAppIDLen)
	}
	if len(event.Source.Host) > maxHostLen {
		return apperr.Validation("source.host must be at most %d characters", maxHostLen)
	}
	if len(event.Source.InstanceID) > maxHostLen {
		return apperr.Validation("source.instance_id must be at most %d characters", maxHostLen)
	}
	if event.Message == "" {
		return apperr.Validation("message is required")
	}
	return nil
}

// NextBatchID derives a batch identifier from the current instant, in the
// millisecond-epoch style of the source prototype.
func NextBatchID(now time.Time) string {
	return "batch_" + strconv.FormatInt(now.UnixMilli(), 10)
}
