package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riakgu/strym/pkg/apperr"
	"github.com/riakgu/strym/pkg/eventstore"
	"github.com/riakgu/strym/pkg/ingestion"
	"github.com/riakgu/strym/pkg/logstream"
	"github.com/riakgu/strym/pkg/query"
)

// handleIngest handles POST /logs.
func (g *Gateway) handleIngest(c *gin.Context) {
	var event logstream.LogEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		renderError(c, apperr.Validation("%s", err.Error()))
		return
	}

	result, err := g.pipeline.Ingest(c.Request.Context(), event)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         result.ID,
		"timestamp":  result.Timestamp,
		"created_at": result.CreatedAt,
	})
}

// handleIngestBulk handles POST /logs/bulk.
func (g *Gateway) handleIngestBulk(c *gin.Context) {
	var events []logstream.LogEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		renderError(c, apperr.Validation("%s", err.Error()))
		return
	}

	batchID := ingestion.NextBatchID(time.Now().UTC())
	result := g.pipeline.IngestBulk(c.Request.Context(), events, batchID)

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": result.Accepted,
		"rejected": result.Rejected,
		"errors":   orEmpty(result.Errors),
		"batch_id": result.BatchID,
	})
}

func orEmpty(errs []ingestion.BulkError) []ingestion.BulkError {
	if errs == nil {
		return []ingestion.BulkError{}
	}
	return errs
}

// handleQuery handles GET /logs.
func (g *Gateway) handleQuery(c *gin.Context) {
	start := time.Now()

	limit, err := parseIntDefault(c.Query("limit"), 100)
	if err != nil || limit < 1 || limit > 1000 {
		renderError(c, apperr.Validation("limit must be an integer in [1, 1000]"))
		return
	}
	offset, err := parseIntDefault(c.Query("offset"), 0)
	if err != nil || offset < 0 {
		renderError(c, apperr.Validation("offset must be a non-negative integer"))
		return
	}

	sort := eventstore.SortDesc
	if v := c.Query("sort"); v == string(eventstore.SortAsc) {
		sort = eventstore.SortAsc
	}

	var severities []string
	if v := c.Query("severity"); v != "" {
		severities = strings.Split(v, ",")
	}

	params := query.Params{
		SourceApp:  c.Query("source_app"),
		Severities: severities,
		Search:     c.Query("search"),
		TraceID:    c.Query("trace_id"),
		Limit:      limit,
		Offset:     offset,
		Sort:       sort,
	}

	page, err := g.query.Query(c.Request.Context(), params)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":           orEmptyEvents(page.Logs),
		"pagination":     page.Pagination,
		"query_time_ms":  time.Since(start).Milliseconds(),
	})
}

func orEmptyEvents(events []logstream.LogEvent) []logstream.LogEvent {
	if events == nil {
		return []logstream.LogEvent{}
	}
	return events
}

// handleSearch handles GET /logs/search.
func (g *Gateway) handleSearch(c *gin.Context) {
	start := time.Now()

	q := c.Query("q")
	if q == "" {
		renderError(c, apperr.Validation("q is required"))
		return
	}
	limit, err := parseIntDefault(c.Query("limit"), 100)
	if err != nil || limit < 1 || limit > 1000 {
		renderError(c, apperr.Validation("limit must be an integer in [1, 1000]"))
		return
	}

	page, err := g.query.Search(c.Request.Context(), q, c.Query("source_app"), limit)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":         orEmptyResults(page.Results),
		"total":           page.Total,
		"search_time_ms":  time.Since(start).Milliseconds(),
	})
}

func orEmptyResults(results []query.SearchResult) []query.SearchResult {
	if results == nil {
		return []query.SearchResult{}
	}
	return results
}

// handleGetByID handles GET /logs/{id}.
func (g *Gateway) handleGetByID(c *gin.Context) {
	event, err := g.query.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func parseIntDefault(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
