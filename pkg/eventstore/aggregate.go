package eventstore

import (
	"context"
	"fmt"
	"time"
)

// AggregateSummary returns total/per-severity counts, error_rate, and
// avg_per_second over timeRange, optionally scoped to one source_app. All
// five severities are present in BySeverity even when their count is zero.
// p95/p99 are left at zero: no percentile producer is defined upstream of
// this store.
func (s *Store) AggregateSummary(ctx context.Context, tr TimeRange, sourceApp string) (Summary, error) {
	conditions := []string{`"timestamp" >= $1`, `"timestamp" <= $2`}
	args := []any{tr.Start, tr.End}
	if sourceApp != "" {
		args = append(args, sourceApp)
		conditions = append(conditions, fmt.Sprintf("source_app = $%d", len(args)))
	}
	where := joinAnd(conditions)

	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM logs WHERE %s`, where), args...).Scan(&total); err != nil {
		return Summary{}, wrapDBError(err)
	}

	bySeverity := make(map[string]int, len(severityLiterals))
	for _, sev := range severityLiterals {
		bySeverity[sev] = 0
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT severity, COUNT(*) FROM logs WHERE %s GROUP BY severity`, where), args...)
	if err != nil {
		return Summary{}, wrapDBError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var sev string
		var count int
		if err := rows.Scan(&sev, &count); err != nil {
			return Summary{}, wrapDBError(err)
		}
		bySeverity[sev] = count
	}
	if err := rows.Err(); err != nil {
		return Summary{}, wrapDBError(err)
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(bySeverity["error"]+bySeverity["fatal"]) / float64(total)
	}

	avgPerSecond := 0.0
	if durationSeconds := tr.End.Sub(tr.Start).Seconds(); durationSeconds > 0 {
		avgPerSecond = float64(total) / durationSeconds
	}

	return Summary{
		TimeRange:    tr,
		TotalLogs:    total,
		BySeverity:   bySeverity,
		ErrorRate:    errorRate,
		AvgPerSecond: avgPerSecond,
	}, nil
}

// AggregateTimeseries groups counts into fixed-width buckets over
// timeRange, grouped by either severity or source_app. Buckets are aligned
// to the Unix epoch via date_bin, Postgres's native time-bucketing
// function (stand-in for the TimescaleDB time_bucket() the source schema
// assumed).
func (s *Store) AggregateTimeseries(ctx context.Context, tr TimeRange, bucket BucketSize, groupBy GroupBy, sourceApp string) ([]Bucket, error) {
	column := "severity"
	if groupBy == GroupBySourceApp {
		column = "source_app"
	}

	conditions := []string{`"timestamp" >= $1`, `"timestamp" <= $2`}
	args := []any{tr.Start, tr.End}
	if sourceApp != "" {
		args = append(args, sourceApp)
		conditions = append(conditions, fmt.Sprintf("source_app = $%d", len(args)))
	}
	where := joinAnd(conditions)

	interval := fmt.Sprintf("%d seconds", int(bucket.duration().Seconds()))
	query := fmt.Sprintf(`
		SELECT date_bin($%d::interval, "timestamp", 'epoch'::timestamptz) AS bucket_start,
		       %s AS group_key, COUNT(*) AS count
		FROM logs
		WHERE %s
		GROUP BY bucket_start, %s
		ORDER BY bucket_start`, len(args)+1, column, where, column)
	args = append(args, interval)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	order := make([]time.Time, 0)
	byBucket := make(map[time.Time]map[string]int)
	for rows.Next() {
		var bucketStart time.Time
		var groupKey string
		var count int
		if err := rows.Scan(&bucketStart, &groupKey, &count); err != nil {
			return nil, wrapDBError(err)
		}
		counts, ok := byBucket[bucketStart]
		if !ok {
			counts = make(map[string]int)
			byBucket[bucketStart] = counts
			order = append(order, bucketStart)
		}
		counts[groupKey] = count
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}

	result := make([]Bucket, 0, len(order))
	for _, start := range order {
		result = append(result, Bucket{Start: start, Counts: byBucket[start]})
	}
	return result, nil
}

func joinAnd(conditions []string) string {
	out := conditions[0]
	for _, c := range conditions[1:] {
		out += " AND " + c
	}
	return out
}
