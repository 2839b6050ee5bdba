package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/riakgu/strym/pkg/apperr"
	"github.com/riakgu/strym/pkg/eventstore"
)

// handleStatsSummary handles GET /stats/summary.
func (g *Gateway) handleStatsSummary(c *gin.Context) {
	start, end, err := parseBounds(c)
	if err != nil {
		renderError(c, err)
		return
	}

	summary, err := g.stats.Summary(c.Request.Context(), start, end, c.Query("source_app"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// handleStatsTimeseries handles GET /stats/timeseries.
func (g *Gateway) handleStatsTimeseries(c *gin.Context) {
	start, end, err := parseBounds(c)
	if err != nil {
		renderError(c, err)
		return
	}

	interval := eventstore.BucketSize(c.DefaultQuery("interval", string(eventstore.Bucket5m)))
	groupBy := eventstore.GroupBy(c.DefaultQuery("group_by", string(eventstore.GroupBySeverity)))
	if groupBy != eventstore.GroupBySeverity && groupBy != eventstore.GroupBySourceApp {
		renderError(c, apperr.Validation("group_by must be one of severity, source_app"))
		return
	}

	buckets, err := g.stats.Timeseries(c.Request.Context(), start, end, interval, groupBy, c.Query("source_app"))
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interval": interval,
		"series":   orEmptyBuckets(buckets),
	})
}

func orEmptyBuckets(buckets []eventstore.Bucket) []eventstore.Bucket {
	if buckets == nil {
		return []eventstore.Bucket{}
	}
	return buckets
}

// parseBounds parses the optional start/end RFC3339 query parameters shared
// by both stats routes.
func parseBounds(c *gin.Context) (*time.Time, *time.Time, error) {
	start, err := parseOptionalTime(c.Query("start"))
	if err != nil {
		return nil, nil, apperr.Validation("start must be RFC3339")
	}
	end, err := parseOptionalTime(c.Query("end"))
	if err != nil {
		return nil, nil, apperr.Validation("end must be RFC3339")
	}
	return start, end, nil
}

func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
