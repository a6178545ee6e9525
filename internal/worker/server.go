// Package worker runs background booking jobs on an asynq queue.
package worker

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// CompletionCron is the cron spec of the completion sweep, e.g. "@every 1h".
	CompletionCron string
	Location       *time.Location
}

// Worker schedules the periodic tasks and processes them.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	cron      string
	logger    *zap.Logger
}

func New(cfg Config, bookings Completer, logger *zap.Logger) *Worker {
	logger = logger.Named("worker")
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			"default": 1,
		},
		Logger: logger.Sugar(),
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: cfg.Location,
		Logger:   logger.Sugar(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCompleteDue, handleCompleteDue(bookings, logger))

	return &Worker{
		server:    server,
		scheduler: scheduler,
		mux:       mux,
		cron:      cfg.CompletionCron,
		logger:    logger,
	}
}

// Start registers the schedule and starts processing without blocking.
func (w *Worker) Start() error {
	// Unique keeps a slow sweep from overlapping the next one.
	if _, err := w.scheduler.Register(w.cron, NewCompleteDueTask(), asynq.Unique(30*time.Minute)); err != nil {
		return fmt.Errorf("register completion sweep: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := w.server.Start(w.mux); err != nil {
		w.scheduler.Shutdown()
		return fmt.Errorf("start worker: %w", err)
	}
	w.logger.Info("worker started", zap.String("completion_cron", w.cron))
	return nil
}

func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}
