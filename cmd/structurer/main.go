// Command structurer serves the dictionary structuring cascade over HTTP
// and, when brokers are configured, as a Kafka worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrihtar/grobid-dictionaries/internal/api"
	"github.com/mrihtar/grobid-dictionaries/internal/classifier"
	"github.com/mrihtar/grobid-dictionaries/internal/corpus"
	"github.com/mrihtar/grobid-dictionaries/internal/pipeline"
	"github.com/mrihtar/grobid-dictionaries/internal/registry"
	"github.com/mrihtar/grobid-dictionaries/internal/worker"
	"github.com/mrihtar/grobid-dictionaries/pkg/config"
	"github.com/mrihtar/grobid-dictionaries/pkg/health"
	"github.com/mrihtar/grobid-dictionaries/pkg/kafka"
	"github.com/mrihtar/grobid-dictionaries/pkg/logger"
	"github.com/mrihtar/grobid-dictionaries/pkg/metrics"
	"github.com/mrihtar/grobid-dictionaries/pkg/middleware"
	"github.com/mrihtar/grobid-dictionaries/pkg/postgres"
	pkgredis "github.com/mrihtar/grobid-dictionaries/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting structuring service", "port", cfg.Server.Port, "mode", cfg.Pipeline.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		stopMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			stopMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker()

	var cache classifier.Store
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, label caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cache = redisClient
			checker.Register("redis", health.Ping(redisClient.Ping, false))
			slog.Info("label cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	p, err := pipeline.Build(ctx, cfg, pipeline.Options{Cache: cache, Metrics: m})
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()
	p.RegisterHealth(checker)

	var runs *registry.Store
	if cfg.Postgres.Host != "" {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		runs = registry.NewPostgres(db)
		if err := runs.Migrate(ctx); err != nil {
			slog.Error("failed to migrate registry", "error", err)
			os.Exit(1)
		}
		checker.Register("registry", health.Ping(db.Ping, true))
	}

	workerDone := make(chan struct{})
	if len(cfg.Kafka.Brokers) > 0 {
		go func() {
			defer close(workerDone)
			runWorker(ctx, cfg, p, runs, m)
		}()
	} else {
		close(workerDone)
	}

	var runStore api.RunStore
	if runs != nil {
		runStore = runs
	}
	mux := http.NewServeMux()
	api.New(p.Structurer, runStore, m).Routes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("structuring service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	<-workerDone
	slog.Info("structuring service stopped")
}

// runWorker consumes token documents until ctx is cancelled. Its documents
// are recorded under one registry run per process.
func runWorker(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, runs *registry.Store, m *metrics.Metrics) {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.StructuredEntry)
	defer producer.Close()

	var observer corpus.Observer
	var runID string
	if runs != nil {
		id, err := runs.StartRun(ctx, "worker", cfg.Kafka.Topics.DocumentTokens, cfg.Kafka.Topics.StructuredEntry)
		if err != nil {
			slog.Error("failed to record worker run", "error", err)
		} else {
			runID = id
			observer = runs.Observer(id)
		}
	}

	w := worker.New(p.Structurer, producer, observer, m)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentTokens, w.Handle)
	slog.Info("structuring worker consuming",
		"topic", cfg.Kafka.Topics.DocumentTokens,
		"group", cfg.Kafka.ConsumerGroup,
	)
	err := consumer.Start(ctx)
	if err != nil {
		slog.Error("consumer error", "error", err)
	}

	if runID != "" {
		finishCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if ferr := runs.FinishRun(finishCtx, runID, 0, 0, nil, err); ferr != nil {
			slog.Error("failed to finish worker run", "error", ferr)
		}
	}
	slog.Info("structuring worker stopped")
}
