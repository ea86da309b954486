package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mail-summary-service/internal/config"
	"mail-summary-service/internal/handler"
	"mail-summary-service/internal/httpserver"
	"mail-summary-service/internal/jobstore"
	"mail-summary-service/internal/repository"
	"mail-summary-service/internal/runner"
	"mail-summary-service/internal/sink"
	"mail-summary-service/internal/summarizer"
	"mail-summary-service/pkg/db"
	"mail-summary-service/pkg/logger"
	"mail-summary-service/pkg/mq"
	"mail-summary-service/pkg/otel"
	pkgredis "mail-summary-service/pkg/redis"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 1. Load .env (可选) 和配置
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logger.NewLogger(cfg.Log.Development)
	defer logger.Sync()

	// 2. Tracing
	shutdownOtel, err := otel.Init(cfg.Otel, logger)
	if err != nil {
		logger.Warn("OpenTelemetry initialization failed, continuing without tracing", zap.Error(err))
		shutdownOtel = func() {}
	}
	defer shutdownOtel()

	// 3. Summarization client。缺少 key 不退出，任务会以 failed 结束
	if !cfg.Gemini.Configured() {
		logger.Warn("GEMINI_API_KEY is not set, every job will fail until it is configured")
	}
	client := summarizer.NewGeminiClient(cfg.Gemini, logger)

	// 4. Job store
	var store jobstore.Store
	switch cfg.Job.Store {
	case config.StoreRedis:
		rdb := pkgredis.NewRedisClient(cfg.Redis)
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Redis initialization failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		store = jobstore.NewRedisStore(rdb, cfg.Job.TTL)
	default:
		store = jobstore.NewMemoryStore()
	}
	logger.Info("Job store ready", zap.String("backend", cfg.Job.Store))

	// 5. Result sinks（可选）
	var sinks []sink.Sink

	if cfg.MQ.URL != "" {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, job events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			sinks = append(sinks, sink.NewEventSink(publisher))
			logger.Info("Job events enabled", zap.String("exchange", mq.ExchangeName))
		}
	}

	if cfg.DB.Enabled {
		dbConn, err := db.NewConnection(cfg.DB, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, job archive disabled", zap.Error(err))
		} else {
			defer dbConn.Close()
			repo := repository.NewSummaryRepository(dbConn)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := repo.EnsureSchema(ctx)
			cancel()
			if err != nil {
				logger.Warn("Failed to prepare archive schema, job archive disabled", zap.Error(err))
			} else {
				sinks = append(sinks, sink.NewArchiveSink(repo))
				logger.Info("Job archive enabled")
			}
		}
	}

	// 6. Runner, handlers, router
	jobRunner := runner.New(store, client, cfg.Job.Progress, logger, sinks...)
	jobHandler := handler.NewJobHandler(store, jobRunner, cfg.Job.MaxUploadBytes, logger)
	router := httpserver.NewRouter(jobHandler, store, cfg.CORS.AllowedOrigins, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Run server
	go func() {
		logger.Info("Starting mail summary service", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server start failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// 8. Graceful shutdown：先停止接收请求，再等待进行中的任务写完终态
	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := jobRunner.Wait(ctx); err != nil {
		logger.Warn("In-flight jobs did not finish before shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
