package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/medflow/medflow-stock/pkg/logger"
)

// Worker wraps the asynq server and its optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *logger.Logger
}

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects what the worker needs to start.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Queue       string
	Concurrency int
	Logger      *logger.Logger
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Queue == "" {
		cfg.Queue = QueueDefault
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	log := cfg.Logger.WithComponent("worker")

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			opts := append([]asynq.Option{asynq.Queue(cfg.Queue)}, entry.Options...)
			if _, err := scheduler.Register(entry.Spec, entry.Task, opts...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: log}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	w.logger.Info().Msg("worker started")

	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits stock tasks to the queue.
type Client struct {
	client *asynq.Client
	queue  string
	unique time.Duration
}

// NewClient constructs a client. A scan for a tenant that is already queued
// is dropped for the unique window.
func NewClient(redisOpts asynq.RedisClientOpt, queue string, unique time.Duration) *Client {
	if queue == "" {
		queue = QueueDefault
	}
	return &Client{client: asynq.NewClient(redisOpts), queue: queue, unique: unique}
}

// EnqueueScan enqueues a scan of one tenant. A duplicate inside the unique
// window is not an error.
func (c *Client) EnqueueScan(ctx context.Context, tenantID string) error {
	task, err := NewScanTask(tenantID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(3)}
	if c.unique > 0 {
		opts = append(opts, asynq.Unique(c.unique))
	}
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return err
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
