package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trapper/internal/audit"
	"trapper/internal/decision"
	decisionmetrics "trapper/internal/decision/metrics"
	decisionstore "trapper/internal/decision/store"
	"trapper/internal/entity"
	entitystore "trapper/internal/entity/store"
	httpapi "trapper/internal/http"
	"trapper/internal/ingest"
	ingeststore "trapper/internal/ingest/store"
	"trapper/internal/match"
	matchstore "trapper/internal/match/store"
	"trapper/internal/platform/config"
	"trapper/internal/platform/httpserver"
	"trapper/internal/platform/logger"
	"trapper/internal/platform/postgres"
	platformredis "trapper/internal/platform/redis"
	"trapper/internal/review"
)

// main wires stores, services, and the HTTP surface. With no DATABASE_URL the
// whole engine runs on in-memory stores, which is enough for local work
// against sample exports.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		records   ingest.RecordStore
		entities  entitystore.Store
		rulesets  matchstore.Store
		decisions decisionstore.Store
		auditLog  audit.Store
	)
	if db != nil {
		records = ingeststore.NewPostgres(db)
		entities = entitystore.NewPostgres(db)
		rulesets = matchstore.NewPostgres(db)
		decisions = decisionstore.NewPostgres(db)
		auditLog = audit.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		records = ingeststore.NewInMemory()
		entities = entitystore.NewInMemory()
		rulesets = matchstore.NewInMemory()
		decisions = decisionstore.NewInMemory()
		auditLog = audit.NewInMemory()
	}

	var suppressions review.SuppressionStore
	if redisSupp := review.NewRedisSuppressions(redisClient); redisSupp != nil {
		suppressions = redisSupp
	} else {
		suppressions = review.NewInMemorySuppressions()
	}

	publisher, err := audit.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.Error("kafka publisher failed", "error", err)
		os.Exit(1)
	}
	var auditPublisher audit.Publisher
	if publisher != nil {
		auditPublisher = publisher
		defer publisher.Close()
	}
	auditor := audit.NewService(auditLog, auditPublisher, log)

	ingestSvc := ingest.NewService(records, log)
	pipelineMetrics := decisionmetrics.New()
	pipeline := decision.NewService(records, entities, rulesets, decisions,
		suppressions, auditor, pipelineMetrics, log, cfg.BatchWorkers)
	reviewSvc := review.NewService(decisions, records, entities, suppressions, auditor, log)

	router := httpapi.NewRouter(log,
		ingest.NewHandler(ingestSvc, log),
		decision.NewHandler(pipeline, decisions, cfg.BatchLimit, log),
		review.NewHandler(reviewSvc, log),
		match.NewHandler(rulesets, log),
		entity.NewHandler(entities, log),
		audit.NewHandler(auditor, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
