// Package eventstore is the append-only persistence layer for log events:
// insert, point lookup, filtered/paginated query, and time-bucketed
// aggregation, backed directly by database/sql + pgx against PostgreSQL.
package eventstore

import (
	"time"

	"github.com/riakgu/strym/pkg/logstream"
)

// Sort is the ordering direction for Query.
type Sort string

const (
	SortAsc  Sort = "asc"
	SortDesc Sort = "desc"
)

// GroupBy is the aggregation dimension for AggregateTimeseries.
type GroupBy string

const (
	GroupBySeverity  GroupBy = "severity"
	GroupBySourceApp GroupBy = "source_app"
)

// BucketSize is a recognized time-series bucket width.
type BucketSize string

const (
	Bucket1m  BucketSize = "1m"
	Bucket5m  BucketSize = "5m"
	Bucket15m BucketSize = "15m"
	Bucket1h  BucketSize = "1h"
	Bucket1d  BucketSize = "1d"
)

func (b BucketSize) duration() time.Duration {
	switch b {
	case Bucket1m:
		return time.Minute
	case Bucket5m:
		return 5 * time.Minute
	case Bucket15m:
		return 15 * time.Minute
	case Bucket1h:
		return time.Hour
	case Bucket1d:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// QueryParams is the filter/pagination input to Query.
type QueryParams struct {
	SourceApp  string
	Severities []string
	Search     string
	TraceID    string
	Limit      int
	Offset     int
	Sort       Sort
}

// QueryResult is the output of Query: the page of events plus the total
// count of the unpaginated predicate.
type QueryResult struct {
	Events []logstream.LogEvent
	Total  int
}

// TimeRange is an inclusive [Start, End] window in UTC.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Summary is the result of AggregateSummary.
type Summary struct {
	TimeRange    TimeRange
	TotalLogs    int
	BySeverity   map[string]int
	ErrorRate    float64
	AvgPerSecond float64
	P95PerSecond float64
	P99PerSecond float64
}

// Bucket is one point of a time series: the bucket's start instant and a
// count per group key (severity literal or source_app id, per GroupBy).
type Bucket struct {
	Start  time.Time
	Counts map[string]int
}

var severityLiterals = []string{"debug", "info", "warn", "error", "fatal"}
