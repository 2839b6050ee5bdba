// Package logstream implements the streaming fan-out engine: the
// per-process table of live WebSocket sessions and their subscriptions,
// and the filter matching used to decide which subscriber receives which
// event.
package logstream

import (
	"encoding/json"
	"time"
)

// Severity is one of the five recognized log severities.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
	SeverityFatal Severity = "fatal"
)

// severityOrdinal is the single source of truth for min_severity comparisons.
// An unknown or empty severity sorts as debug (ordinal 0).
var severityOrdinal = map[Severity]int{
	SeverityDebug: 0,
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityError: 3,
	SeverityFatal: 4,
}

// Ordinal returns the severity's rank for min_severity comparisons.
// Unknown severities (including the zero value) rank as debug.
func (s Severity) Ordinal() int {
	if o, ok := severityOrdinal[s]; ok {
		return o
	}
	return 0
}

// Valid reports whether s is one of the five recognized severities.
func (s Severity) Valid() bool {
	_, ok := severityOrdinal[s]
	return ok
}

// LogSource identifies the origin of an event.
type LogSource struct {
	AppID      string `json:"app_id"`
	Host       string `json:"host,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
}

// LogEvent is the unit of ingestion and delivery.
type LogEvent struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Source    LogSource       `json:"source"`
	Severity  Severity        `json:"severity"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	SpanID    string          `json:"span_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// StringSet is a filter value that accepts either a single scalar or an
// array of scalars in its JSON form. Parsing a free-form filter mapping
// into this typed field is what keeps unknown filter keys dropped at
// parse time.
type StringSet map[string]struct{}

// UnmarshalJSON accepts either a JSON string or a JSON array of strings.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringSet{single: {}}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	set := make(StringSet, len(many))
	for _, v := range many {
		set[v] = struct{}{}
	}
	*s = set
	return nil
}

// MarshalJSON renders a single-element set as a scalar and a multi-element
// set as an array, mirroring the shapes accepted by UnmarshalJSON.
func (s StringSet) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		for v := range s {
			return json.Marshal(v)
		}
	}
	values := make([]string, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	return json.Marshal(values)
}

// Has reports whether v is a member of the set. An empty/nil set never matches.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Filters is the typed, enumerated recognized-key filter set. Unknown
// JSON keys are silently dropped by the struct tags below.
type Filters struct {
	SourceApp   StringSet `json:"source_app,omitempty"`
	Severity    StringSet `json:"severity,omitempty"`
	MinSeverity Severity  `json:"min_severity,omitempty"`
}

// Empty reports whether no recognized filter clause was set. An empty
// filter set matches every event.
func (f Filters) Empty() bool {
	return len(f.SourceApp) == 0 && len(f.Severity) == 0 && f.MinSeverity == ""
}

// Subscription is a filter + delivery intent held within a session.
type Subscription struct {
	ID      string
	Filters Filters
	Paused  bool
}
