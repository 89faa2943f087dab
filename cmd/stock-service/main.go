package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/medflow/medflow-stock/internal/stock/client"
	"github.com/medflow/medflow-stock/internal/stock/consumers"
	"github.com/medflow/medflow-stock/internal/stock/domain"
	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/internal/stock/handler"
	"github.com/medflow/medflow-stock/internal/stock/pricing"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/config"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/httputil"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("stock-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("stock-service", cfg.Server.Environment)
	log.Info().Msg("starting Stock Service")

	defaultMarkup, err := decimal.NewFromString(cfg.Stock.DefaultMarkupPercent)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.Stock.DefaultMarkupPercent).Msg("invalid default markup")
	}

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Redis backs the pricing config cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	batchRepo := repository.NewBatchRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	ruleRepo := repository.NewReorderRuleRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	pricingRepo := repository.NewTenantPricingRepository(db)

	// Initialize services
	registry := service.NewRegistry(db, batchRepo, unitRepo, movementRepo, publisher, cfg.Stock.LockTimeout, log)
	orchestrator := service.NewOrchestrator(
		db, batchRepo, unitRepo, movementRepo, publisher,
		domain.Strategy(cfg.Stock.DefaultStrategy), cfg.Stock.LockTimeout, log,
	)
	monitor := service.NewMonitor(db, ruleRepo, unitRepo, batchRepo, alertRepo, publisher, publisher, cfg.Monitor.ExpiryHorizonDays, log)

	// Without an insurance service, quotes honour only the coverage sent with the order
	var insurance pricing.InsuranceSource
	if cfg.Services.InsuranceServiceURL != "" {
		insurance = client.NewInsuranceClient(cfg.Services.InsuranceServiceURL, cfg.Services.Timeout, log)
	} else {
		log.Warn().Msg("insurance service URL not set, insurer lookups disabled")
	}

	configCache := pricing.NewConfigCache(rdb, cfg.Stock.ConfigCacheTTL)
	quoter := pricing.NewQuoter(pricingRepo, configCache, insurance, defaultMarkup, log)

	// Initialize handlers
	handlers := handler.Handlers{
		Batches:     handler.NewBatchHandler(registry, log),
		Allocations: handler.NewAllocationHandler(orchestrator, log),
		Alerts:      handler.NewAlertHandler(monitor, log),
		Pricing:     handler.NewPricingHandler(quoter, orchestrator, pricingRepo, configCache, log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start order event consumer
	orderConsumer, err := consumers.NewOrderEventConsumer(rmq, orchestrator, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create order event consumer")
	}
	if err := orderConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start order event consumer")
	}

	var scheduler *service.Scheduler
	if cfg.Monitor.Enabled && cfg.Monitor.Runner == config.MonitorRunnerInProcess {
		scheduler = service.NewScheduler(monitor, ruleRepo, cfg.Monitor.Interval, cfg.Monitor.TenantConcurrency, log)
		scheduler.Start(ctx)
	}

	router := handler.NewRouter(handlers, handler.RouterOptions{
		ScanRateLimit:      cfg.Monitor.ScanRateLimit,
		EnforcePermissions: cfg.Server.EnforcePermissions,
		Health: func(w http.ResponseWriter, r *http.Request) {
			redisStatus := "up"
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				redisStatus = "down"
			}
			httputil.JSON(w, http.StatusOK, map[string]interface{}{
				"status":   "healthy",
				"service":  "stock-service",
				"database": db.Health(r.Context()),
				"rabbitmq": rmq.Health(),
				"redis":    redisStatus,
			})
		},
	}, log)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stop the monitor before the consumers so a running scan can finish
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
