package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/medflow/medflow-stock/internal/stock/events"
	"github.com/medflow/medflow-stock/internal/stock/jobs"
	"github.com/medflow/medflow-stock/internal/stock/repository"
	"github.com/medflow/medflow-stock/internal/stock/service"
	"github.com/medflow/medflow-stock/pkg/config"
	"github.com/medflow/medflow-stock/pkg/database"
	"github.com/medflow/medflow-stock/pkg/logger"
	"github.com/medflow/medflow-stock/pkg/messaging"
)

func main() {
	cfg, err := config.LoadWithValidation("stock-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("stock-worker", cfg.Server.Environment)
	log.Info().Msg("starting Stock Worker")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	batchRepo := repository.NewBatchRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	ruleRepo := repository.NewReorderRuleRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	monitor := service.NewMonitor(db, ruleRepo, unitRepo, batchRepo, alertRepo, publisher, publisher, cfg.Monitor.ExpiryHorizonDays, log)

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := jobs.NewClient(redisOpts, cfg.Worker.Queue, cfg.Monitor.Interval)
	defer client.Close()

	var cron []jobs.CronRegistration
	if cfg.Monitor.Enabled && cfg.Monitor.Runner == config.MonitorRunnerWorker {
		cron = append(cron, jobs.CronRegistration{
			Spec: "@every " + cfg.Monitor.Interval.String(),
			Task: jobs.NewSweepTask(),
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Queue:       cfg.Worker.Queue,
		Concurrency: cfg.Worker.Concurrency,
		Logger:      log,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskMonitorScan, Handler: jobs.NewScanJob(monitor, log).Handle},
			{Type: jobs.TaskMonitorSweep, Handler: jobs.NewSweepJob(ruleRepo, client, log).Handle},
		},
		Cron: cron,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker stopped with error")
	}

	log.Info().Msg("worker stopped")
}
