package eventstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/riakgu/strym/pkg/apperr"
	"github.com/riakgu/strym/pkg/logstream"
)

// setupTestStore starts a postgres testcontainer for the calling test
// (terminated on cleanup) and gives the test its own schema, mirroring the
// teacher's per-test-schema pattern in test/util.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("strym_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	schema := generateSchemaName(t)
	setupDB, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	_, err = setupDB.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	require.NoError(t, setupDB.Close())

	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	scopedConnStr := fmt.Sprintf("%s%ssearch_path=%s", connStr, separator, schema)

	store, err := Open(ctx, Config{DatabaseURL: scopedConnStr, PoolSize: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func generateSchemaName(t *testing.T) string {
	t.Helper()
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)
	if len(testName) > 40 {
		testName = testName[:40]
	}
	randomBytes := make([]byte, 4)
	_, err := rand.Read(randomBytes)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}

func sampleEvent(appID string, severity logstream.Severity) logstream.LogEvent {
	return logstream.LogEvent{
		Source:   logstream.LogSource{AppID: appID},
		Severity: severity,
		Message:  "something happened",
	}
}

func TestStore_InsertAssignsIDAndCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	before := time.Now().UTC()
	inserted, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityInfo))
	require.NoError(t, err)

	require.NotEmpty(t, inserted.ID)
	require.WithinDuration(t, before, inserted.CreatedAt, 2*time.Second)
}

func TestStore_InsertAssignsUniqueIDs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityInfo))
	require.NoError(t, err)
	second, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityInfo))
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
}

func TestStore_GetByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	inserted, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityWarn))
	require.NoError(t, err)

	fetched, err := store.GetByID(ctx, inserted.ID)
	require.NoError(t, err)
	require.Equal(t, inserted.ID, fetched.ID)
	require.Equal(t, "checkout", fetched.Source.AppID)
	require.Equal(t, logstream.SeverityWarn, fetched.Severity)
}

func TestStore_GetByIDNotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetByID(context.Background(), "999999")

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindNotFound, appErr.Kind)
}

func TestStore_QueryPaginationAndHasMore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityInfo))
		require.NoError(t, err)
	}

	result, err := store.Query(ctx, QueryParams{SourceApp: "checkout", Limit: 2, Offset: 0, Sort: SortDesc})
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	require.Equal(t, 5, result.Total)
}

func TestStore_QueryFiltersBySeverity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityError))
	require.NoError(t, err)
	_, err = store.Insert(ctx, sampleEvent("checkout", logstream.SeverityDebug))
	require.NoError(t, err)

	result, err := store.Query(ctx, QueryParams{Severities: []string{"error", "fatal"}, Limit: 10, Sort: SortDesc})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	require.Equal(t, logstream.SeverityError, result.Events[0].Severity)
}

func TestStore_QueryFullTextSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := sampleEvent("checkout", logstream.SeverityInfo)
	event.Message = "payment gateway timeout"
	_, err := store.Insert(ctx, event)
	require.NoError(t, err)

	other := sampleEvent("checkout", logstream.SeverityInfo)
	other.Message = "user logged in"
	_, err = store.Insert(ctx, other)
	require.NoError(t, err)

	result, err := store.Query(ctx, QueryParams{Search: "gateway", Limit: 10, Sort: SortDesc})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	require.Contains(t, result.Events[0].Message, "gateway")
}

func TestStore_AggregateSummaryFillsAllSeveritiesAndComputesErrorRate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Hour)
	for _, sev := range []logstream.Severity{logstream.SeverityInfo, logstream.SeverityInfo, logstream.SeverityError} {
		_, err := store.Insert(ctx, sampleEvent("checkout", sev))
		require.NoError(t, err)
	}
	end := time.Now().UTC().Add(time.Hour)

	summary, err := store.AggregateSummary(ctx, TimeRange{Start: start, End: end}, "")
	require.NoError(t, err)

	require.Equal(t, 3, summary.TotalLogs)
	sum := 0
	for _, sev := range []string{"debug", "info", "warn", "error", "fatal"} {
		_, present := summary.BySeverity[sev]
		require.True(t, present, "severity %s must be present", sev)
		sum += summary.BySeverity[sev]
	}
	require.Equal(t, summary.TotalLogs, sum)
	require.InDelta(t, 1.0/3.0, summary.ErrorRate, 0.0001)
}

func TestStore_AggregateTimeseriesGroupsByBucket(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Hour)
	_, err := store.Insert(ctx, sampleEvent("checkout", logstream.SeverityInfo))
	require.NoError(t, err)
	end := time.Now().UTC().Add(time.Hour)

	buckets, err := store.AggregateTimeseries(ctx, TimeRange{Start: start, End: end}, Bucket1h, GroupBySeverity, "")
	require.NoError(t, err)
	require.NotEmpty(t, buckets)
	require.Equal(t, 1, buckets[0].Counts["info"])
}
