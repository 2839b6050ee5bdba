// strym is a log-ingestion and real-time streaming service: it accepts
// structured log events over HTTP, serves filtered/paginated/full-text
// reads over the same surface, and fans matching events out to live
// WebSocket subscribers across every running instance.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/riakgu/strym/pkg/cachestore"
	"github.com/riakgu/strym/pkg/eventbus"
	"github.com/riakgu/strym/pkg/eventstore"
	"github.com/riakgu/strym/pkg/gateway"
	"github.com/riakgu/strym/pkg/ingestion"
	"github.com/riakgu/strym/pkg/logstream"
	"github.com/riakgu/strym/pkg/query"
	"github.com/riakgu/strym/pkg/stats"
	"github.com/riakgu/strym/pkg/strymconfig"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded, continuing with existing environment: %v", err)
	}

	cfg, err := strymconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "release")
	if cfg.Debug {
		ginMode = "debug"
	}
	gin.SetMode(ginMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := eventstore.Open(ctx, eventstore.Config{
		DatabaseURL: cfg.DatabaseURL,
		PoolSize:    cfg.DatabasePoolSize,
	})
	if err != nil {
		log.Fatalf("failed to open event store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("error closing event store: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL event store")

	cache, err := cachestore.Open(cachestore.Config{RedisURL: cfg.RedisURL})
	if err != nil {
		log.Fatalf("failed to open cache store: %v", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Printf("error closing cache store: %v", err)
		}
	}()

	bus, err := eventbus.Open(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to open event bus: %v", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Printf("error closing event bus: %v", err)
		}
	}()

	registry := logstream.NewRegistry()

	pipeline := ingestion.New(store, cache, bus, registry)
	queryService := query.New(store, cache)
	statsService := stats.New(store)

	// Deliver every bus payload (including this instance's own publishes)
	// to the local subscription registry.
	go bus.Listen(ctx, func(payload []byte) {
		var event logstream.LogEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			slog.Error("failed to decode bus payload, dropping", "error", err)
			return
		}
		registry.Fanout(event, logstream.EncodeLogMessage)
	})

	gw := gateway.New(store, cache, pipeline, queryService, statsService, registry, cfg.APIKey, cfg.AppName)

	router := gin.New()
	router.Use(gin.Recovery())
	gw.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: router,
	}

	go func() {
		log.Printf("%s listening on :%s", cfg.AppName, httpPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during HTTP shutdown: %v", err)
	}
}
