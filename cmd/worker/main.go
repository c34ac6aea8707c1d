// Background job process: runs the creation and registration jobs.
package main

import (
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"payment-relay/internal/config"
	"payment-relay/internal/jobs"
	"payment-relay/internal/models"
	"payment-relay/internal/processor"
	"payment-relay/internal/repository"
	"payment-relay/internal/service"
	"payment-relay/pkg/cache"
	"payment-relay/pkg/database"
	"payment-relay/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.New("payment-relay-worker", cfg.Environment == "development")
	defer log.Sync()

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(db, models.PaymentSchema); err != nil {
		log.Fatal("failed to apply schema", zap.Error(err))
	}

	idCache := cache.New(cfg.RedisAddr, cfg.CacheTTL)
	defer idCache.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	policy := jobs.RetryPolicy{
		ServiceUnavailableAttempts: cfg.ServiceUnavailableAttempts,
		ServiceUnavailableDelay:    cfg.ServiceUnavailableDelay,
		UnexpectedAttempts:         cfg.UnexpectedAttempts,
		UnexpectedDelay:            cfg.UnexpectedDelay,
		CreationRetries:            cfg.CreationRetries,
	}
	enqueuer := jobs.NewEnqueuer(asynqClient, policy)

	repo := repository.NewPaymentRepository(db)
	router := processor.NewRouter(log,
		processor.NewClient(models.TierDefault, cfg.DefaultServiceURL, cfg.ServiceTimeout),
		processor.NewClient(models.TierFallback, cfg.FallbackServiceURL, cfg.ServiceTimeout),
	)
	payments := service.NewPaymentService(repo, router, idCache, log)

	h := jobs.NewHandler(payments, repo, router, enqueuer, policy, log)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency:    cfg.WorkerConcurrency,
			RetryDelayFunc: policy.RetryDelay,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeCreatePayment, h.HandleCreatePayment)
	mux.HandleFunc(jobs.TypeRegisterPayment, h.HandleRegisterPayment)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		log.Info("metrics server started", zap.String("port", cfg.WorkerMetricsPort))
		if err := http.ListenAndServe(":"+cfg.WorkerMetricsPort, metricsMux); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	log.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := srv.Run(mux); err != nil {
		log.Fatal("worker stopped", zap.Error(err))
	}
}
