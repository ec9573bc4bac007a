// Command sentineld runs the log intelligence pipeline: HTTP ingest,
// the scoring -> windowing -> meta-analysis -> alerting orchestrator,
// and the /health and /metrics surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/sentinel/pkg/alert"
	"github.com/codeready-toolchain/sentinel/pkg/channel"
	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/database"
	"github.com/codeready-toolchain/sentinel/pkg/finding"
	"github.com/codeready-toolchain/sentinel/pkg/ingest"
	"github.com/codeready-toolchain/sentinel/pkg/lease"
	"github.com/codeready-toolchain/sentinel/pkg/llm"
	"github.com/codeready-toolchain/sentinel/pkg/meta"
	"github.com/codeready-toolchain/sentinel/pkg/models"
	"github.com/codeready-toolchain/sentinel/pkg/orchestrator"
	"github.com/codeready-toolchain/sentinel/pkg/router"
	"github.com/codeready-toolchain/sentinel/pkg/scorer"
	"github.com/codeready-toolchain/sentinel/pkg/store"
	"github.com/codeready-toolchain/sentinel/pkg/telemetry"
	"github.com/codeready-toolchain/sentinel/pkg/window"
)

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "directory containing sentinel.yaml")
	flag.Parse()

	if envPath := getEnv("ENV_FILE", ".env"); envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to load .env file, continuing with process environment", "path", envPath, "error", err)
		}
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	if getEnv("GIN_MODE", "") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load database configuration: %v", err)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	st := store.New(dbClient.DB())

	var rdb *redis.Client
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		redisPassword := cfg.Redis.Password
		if redisPassword != "" {
			if resolved, err := config.ResolveSecret(redisPassword); err == nil {
				redisPassword = resolved
			}
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: redisPassword,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable at startup, routing cache and leases degrade to single-process mode", "error", err)
			rdb = nil
		}
	}

	apiKey, err := config.ResolveSecret(cfg.LLM.APIKeyEnv)
	if err != nil {
		slog.Warn("LLM API key not resolved, calls will be unauthenticated", "error", err)
	}
	llmClient := llm.NewClient(cfg.LLM, apiKey)

	rt := router.New(st, rdb)
	leases := lease.NewManager(rdb)
	findingEngine := finding.New(st, cfg.Pipeline)
	sc := scorer.New(st, llmClient, cfg.LLM, cfg.Pipeline, cfg.Prompts.Scoring)
	wn := window.New(st)
	an := meta.New(st, llmClient, cfg.LLM, cfg.Pipeline, cfg.Prompts.Meta, findingEngine)
	dispatchers := channel.NewDefaultRegistry(&http.Client{Timeout: 10 * time.Second})
	ev := alert.New(st, dispatchers)
	metrics := telemetry.NewMetrics()

	shutdownTracer, err := telemetry.InitTracer(ctx, "sentineld")
	if err != nil {
		slog.Warn("tracing initialisation failed, continuing without tracing", "error", err)
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	orch := orchestrator.New(st, cfg, sc, wn, an, ev, leases, metrics)
	orchCtx, stopOrch := context.WithCancel(ctx)
	orch.Start(orchCtx)
	defer func() {
		stopOrch()
		orch.Stop()
	}()

	srv := buildServer(httpPort, st, rt, cfg, metrics)

	go func() {
		slog.Info("HTTP server listening", "port", httpPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	waitForShutdown(srv)
}

func buildServer(httpPort string, st *store.Store, rt *router.Router, cfg *config.Config, metrics *telemetry.Metrics) *http.Server {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := database.Health(reqCtx, st.DB())
		status := http.StatusOK
		errMsg := ""
		if err != nil {
			status = http.StatusServiceUnavailable
			errMsg = err.Error()
		}
		c.JSON(status, gin.H{
			"status":   dbHealth.Status,
			"database": dbHealth,
			"error":    errMsg,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/ingest", func(c *gin.Context) {
		handleIngest(c, st, rt, cfg)
	})

	return &http.Server{
		Addr:    ":" + httpPort,
		Handler: r,
	}
}

// ingestPayload accepts the three shapes §6.1 allows: a bare array of
// records, a single record, or {"events": [...]}.
type ingestPayload struct {
	Events []models.RawEvent `json:"events"`
}

// handleIngest implements the ingest contract (§6.1): reassemble
// multiline continuations, route each record to its (system, log
// source) via the selector table, normalise it, and persist.
// Unmatched or malformed payloads are rejected individually rather
// than failing the whole batch.
func handleIngest(c *gin.Context, st *store.Store, rt *router.Router, cfg *config.Config) {
	batch, err := decodeIngestBatch(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: expected a JSON object, array of objects, or {\"events\": [...]}"})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()

	reassembler := ingest.NewReassembler()
	for _, raw := range batch {
		reassembler.Feed(raw)
	}
	batch = reassembler.Flush()

	tzOffsets := make(map[string]*int)
	var events []models.Event
	rejected := 0
	for _, raw := range batch {
		src, ok, err := rt.Match(ctx, raw)
		if err != nil {
			slog.Error("ingest: routing failed", "error", err)
			rejected++
			continue
		}
		if !ok {
			rejected++
			continue
		}

		tzOffset, cached := tzOffsets[src.SystemID]
		if !cached {
			if sys, err := st.Systems.GetSystem(ctx, src.SystemID); err == nil && sys != nil {
				tzOffset = sys.TimezoneOffsetMin
			}
			tzOffsets[src.SystemID] = tzOffset
		}

		ev, err := ingest.Normalize(src.SystemID, src.ID, raw, now, cfg.Pipeline.MessageMaxLength, tzOffset)
		if err != nil {
			rejected++
			continue
		}
		events = append(events, ev)
	}

	ingested := 0
	if len(events) > 0 {
		n, err := st.Events.Insert(ctx, events)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist events"})
			return
		}
		ingested = n
	}

	c.JSON(http.StatusAccepted, gin.H{
		"ingested": ingested,
		"deduped":  len(events) - ingested,
		"rejected": rejected,
	})
}

// decodeIngestBatch parses the request body as {"events": [...]}, a
// bare array, or a single record, in that order.
func decodeIngestBatch(c *gin.Context) ([]models.RawEvent, error) {
	var wrapped ingestPayload
	if err := c.ShouldBindBodyWithJSON(&wrapped); err == nil && wrapped.Events != nil {
		return wrapped.Events, nil
	}

	var batch []models.RawEvent
	if err := c.ShouldBindBodyWithJSON(&batch); err == nil {
		return batch, nil
	}

	var single models.RawEvent
	if err := c.ShouldBindBodyWithJSON(&single); err != nil {
		return nil, err
	}
	return []models.RawEvent{single}, nil
}

func waitForShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
