package logstream

// Matches reports whether event satisfies every clause in filters. Empty
// filters match everything; all enumerated clauses are conjunctive; unknown
// filter keys were already dropped at parse time (Filters only has typed,
// recognized fields), so there is nothing left to ignore here.
func Matches(event LogEvent, filters Filters) bool {
	if filters.Empty() {
		return true
	}

	if len(filters.SourceApp) > 0 && !filters.SourceApp.Has(event.Source.AppID) {
		return false
	}

	if len(filters.Severity) > 0 && !filters.Severity.Has(string(event.Severity)) {
		return false
	}

	if filters.MinSeverity != "" && event.Severity.Ordinal() < filters.MinSeverity.Ordinal() {
		return false
	}

	return true
}
