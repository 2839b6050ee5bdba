package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/riakgu/strym/pkg/apperr"
	"github.com/riakgu/strym/pkg/logstream"
)

// Insert persists event, assigning id and created_at. timestamp defaults
// to the insertion instant when the caller left it zero.
func (s *Store) Insert(ctx context.Context, event logstream.LogEvent) (logstream.LogEvent, error) {
	now := time.Now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	var metadata any
	if len(event.Metadata) > 0 {
		metadata = []byte(event.Metadata)
	}

	var id int64
	var ts, createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO logs (
			"timestamp", source_app, source_host, source_instance,
			severity, message, metadata, trace_id, span_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, "timestamp", created_at`,
		event.Timestamp, event.Source.AppID, nullableString(event.Source.Host), nullableString(event.Source.InstanceID),
		string(event.Severity), event.Message, metadata, nullableString(event.TraceID), nullableString(event.SpanID), now,
	).Scan(&id, &ts, &createdAt)
	if err != nil {
		return logstream.LogEvent{}, wrapDBError(err)
	}

	event.ID = strconv.FormatInt(id, 10)
	event.Timestamp = ts
	event.CreatedAt = createdAt
	return event, nil
}

// GetByID returns the event with the given id, or a NotFound apperr.
func (s *Store) GetByID(ctx context.Context, id string) (logstream.LogEvent, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return logstream.LogEvent{}, apperr.NotFound("Log", id)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, "timestamp", source_app, source_host, source_instance,
		       severity, message, metadata, trace_id, span_id, created_at
		FROM logs WHERE id = $1`, numericID)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return logstream.LogEvent{}, apperr.NotFound("Log", id)
	}
	if err != nil {
		return logstream.LogEvent{}, wrapDBError(err)
	}
	return event, nil
}

// Query returns the page of events matching params along with the total
// count of the unpaginated predicate.
func (s *Store) Query(ctx context.Context, params QueryParams) (QueryResult, error) {
	var conditions []string
	var args []any

	if params.SourceApp != "" {
		args = append(args, params.SourceApp)
		conditions = append(conditions, fmt.Sprintf("source_app = $%d", len(args)))
	}
	if len(params.Severities) > 0 {
		placeholders := make([]string, len(params.Severities))
		for i, sev := range params.Severities {
			args = append(args, sev)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}
	if params.Search != "" {
		args = append(args, params.Search)
		conditions = append(conditions, fmt.Sprintf("message_search @@ plainto_tsquery('english', $%d)", len(args)))
	}
	if params.TraceID != "" {
		args = append(args, params.TraceID)
		conditions = append(conditions, fmt.Sprintf("trace_id = $%d", len(args)))
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM logs WHERE %s`, where)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return QueryResult{}, wrapDBError(err)
	}

	order := "DESC"
	if params.Sort == SortAsc {
		order = "ASC"
	}

	limitArgs := append(append([]any{}, args...), params.Limit, params.Offset)
	selectQuery := fmt.Sprintf(`
		SELECT id, "timestamp", source_app, source_host, source_instance,
		       severity, message, metadata, trace_id, span_id, created_at
		FROM logs
		WHERE %s
		ORDER BY "timestamp" %s, id %s
		LIMIT $%d OFFSET $%d`, where, order, order, len(limitArgs)-1, len(limitArgs))

	rows, err := s.db.QueryContext(ctx, selectQuery, limitArgs...)
	if err != nil {
		return QueryResult{}, wrapDBError(err)
	}
	defer rows.Close()

	events := make([]logstream.LogEvent, 0, params.Limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return QueryResult{}, wrapDBError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, wrapDBError(err)
	}

	return QueryResult{Events: events, Total: total}, nil
}

// SearchResult pairs a matched event with its full-text rank.
type SearchResult struct {
	Event logstream.LogEvent
	Score float64
}

// Search runs a ranked full-text query against message, optionally scoped
// to sourceApp, ordered by descending rank.
func (s *Store) Search(ctx context.Context, q, sourceApp string, limit int) ([]SearchResult, error) {
	args := []any{q}
	where := "message_search @@ plainto_tsquery('english', $1)"
	if sourceApp != "" {
		args = append(args, sourceApp)
		where += fmt.Sprintf(" AND source_app = $%d", len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, "timestamp", source_app, source_host, source_instance,
		       severity, message, metadata, trace_id, span_id, created_at,
		       ts_rank(message_search, plainto_tsquery('english', $1)) AS score
		FROM logs
		WHERE %s
		ORDER BY score DESC, id DESC
		LIMIT $%d`, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			id                           int64
			ts, createdAt                time.Time
			sourceAppVal, severity, message string
			sourceHost, sourceInstance   sql.NullString
			traceID, spanID              sql.NullString
			metadata                     []byte
			score                        float64
		)
		if err := rows.Scan(&id, &ts, &sourceAppVal, &sourceHost, &sourceInstance,
			&severity, &message, &metadata, &traceID, &spanID, &createdAt, &score); err != nil {
			return nil, wrapDBError(err)
		}
		event := logstream.LogEvent{
			ID:        strconv.FormatInt(id, 10),
			Timestamp: ts,
			Source: logstream.LogSource{
				AppID:      sourceAppVal,
				Host:       sourceHost.String,
				InstanceID: sourceInstance.String,
			},
			Severity:  logstream.Severity(severity),
			Message:   message,
			TraceID:   traceID.String,
			SpanID:    spanID.String,
			CreatedAt: createdAt,
		}
		if len(metadata) > 0 {
			event.Metadata = json.RawMessage(metadata)
		}
		results = append(results, SearchResult{Event: event, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError(err)
	}
	return results, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (logstream.LogEvent, error) {
	var (
		id                           int64
		ts, createdAt                time.Time
		sourceApp, severity, message string
		sourceHost, sourceInstance   sql.NullString
		traceID, spanID              sql.NullString
		metadata                     []byte
	)

	if err := row.Scan(&id, &ts, &sourceApp, &sourceHost, &sourceInstance,
		&severity, &message, &metadata, &traceID, &spanID, &createdAt); err != nil {
		return logstream.LogEvent{}, err
	}

	event := logstream.LogEvent{
		ID:        strconv.FormatInt(id, 10),
		Timestamp: ts,
		Source: logstream.LogSource{
			AppID:      sourceApp,
			Host:       sourceHost.String,
			InstanceID: sourceInstance.String,
		},
		Severity:  logstream.Severity(severity),
		Message:   message,
		TraceID:   traceID.String,
		SpanID:    spanID.String,
		CreatedAt: createdAt,
	}
	if len(metadata) > 0 {
		event.Metadata = json.RawMessage(metadata)
	}
	return event, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
