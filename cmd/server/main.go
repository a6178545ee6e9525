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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/app"
	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/config"
	"github.com/Malathy2002/hall-booking-website/internal/db"
	"github.com/Malathy2002/hall-booking-website/internal/logger"
	"github.com/Malathy2002/hall-booking-website/internal/notify"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
	"github.com/Malathy2002/hall-booking-website/internal/worker"
)

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.IsProduction, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		lg.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			lg.Fatal("failed to migrate schema", zap.Error(err))
		}
		lg.Info("schema migrated")
	}

	// Notifications go to RabbitMQ when configured, otherwise to the log.
	var publisher notify.Publisher = notify.NewLogPublisher(lg.Named("notify"))
	if cfg.RabbitMQURL != "" {
		rp, err := notify.NewRabbitPublisher(cfg.RabbitMQURL, cfg.NotifyExchange)
		if err != nil {
			lg.Fatal("failed to connect to rabbitmq", zap.Error(err))
		}
		defer rp.Close()
		publisher = rp
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
	}

	container := app.NewContainer(app.Config{
		IsProduction:         cfg.IsProduction,
		ProdOrigins:          cfg.ProdOrigins,
		DBPool:               pool,
		Logger:               lg,
		JWTSecret:            cfg.JWTSecret,
		Redis:                rdb,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
		Gateway:              payment.NewRazorpayClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout),
		GatewayKeySecret:     cfg.GatewayKeySecret,
		GatewayWebhookSecret: cfg.GatewayWebhookSecret,
		GatewayTimeout:       cfg.GatewayTimeout,
		Currency:             cfg.Currency,
		Publisher:            publisher,
		NotifyTimeout:        cfg.NotifyTimeout,
		BookingPolicy: booking.Policy{
			CancellationWindow:  cfg.CancellationWindow,
			Location:            cfg.BusinessLocation,
			ReportBalanceOnSite: cfg.BalancePolicy == config.BalanceOnSite,
		},
	})

	// Background completion sweep needs Redis for the queue.
	var wk *worker.Worker
	if cfg.RedisAddr != "" {
		wk = worker.New(worker.Config{
			RedisAddr:      cfg.RedisAddr,
			RedisPassword:  cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			CompletionCron: cfg.CompletionSweepCron,
			Location:       cfg.BusinessLocation,
		}, container.BookingService, lg)
		if err := wk.Start(); err != nil {
			lg.Fatal("failed to start worker", zap.Error(err))
		}
	} else {
		lg.Info("REDIS_ADDR not set; completion sweep disabled")
	}

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           container.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in separate goroutine
	go func() {
		lg.Info("server running", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	lg.Info("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server forced to shutdown", zap.Error(err))
	}
	if wk != nil {
		wk.Shutdown()
	}
	container.Dispatcher.Wait()

	lg.Info("server exited gracefully")
}
