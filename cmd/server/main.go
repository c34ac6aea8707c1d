// HTTP API process: synchronous creation path plus the async enqueue path.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"payment-relay/internal/config"
	"payment-relay/internal/handler"
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

	log := logger.New("payment-relay-api", cfg.Environment == "development")
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

	policy := retryPolicy(cfg)
	enqueuer := jobs.NewEnqueuer(asynqClient, policy)

	repo := repository.NewPaymentRepository(db)
	router := processor.NewRouter(log,
		processor.NewClient(models.TierDefault, cfg.DefaultServiceURL, cfg.ServiceTimeout),
		processor.NewClient(models.TierFallback, cfg.FallbackServiceURL, cfg.ServiceTimeout),
	)

	payments := service.NewPaymentService(repo, router, idCache, log)
	enqueue := service.NewEnqueueService(enqueuer, log)
	paymentHandler := handler.NewPaymentHandler(payments, enqueue, repo, log)

	engine := setupRouter(paymentHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
		// The sync path may wait on two sequential service attempts.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.ServiceTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

func setupRouter(h *handler.PaymentHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/payments", h.CreatePayment)
	router.POST("/payments/async", h.CreatePaymentAsync)
	router.GET("/payments/:id", h.GetPayment)
	router.GET("/payments-summary", h.GetSummary)

	return router
}

func retryPolicy(cfg *config.Config) jobs.RetryPolicy {
	return jobs.RetryPolicy{
		ServiceUnavailableAttempts: cfg.ServiceUnavailableAttempts,
		ServiceUnavailableDelay:    cfg.ServiceUnavailableDelay,
		UnexpectedAttempts:         cfg.UnexpectedAttempts,
		UnexpectedDelay:            cfg.UnexpectedDelay,
		CreationRetries:            cfg.CreationRetries,
	}
}
