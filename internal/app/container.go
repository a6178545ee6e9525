package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/api"
	"github.com/Malathy2002/hall-booking-website/internal/auth"
	"github.com/Malathy2002/hall-booking-website/internal/booking"
	"github.com/Malathy2002/hall-booking-website/internal/db"
	"github.com/Malathy2002/hall-booking-website/internal/hall"
	"github.com/Malathy2002/hall-booking-website/internal/notify"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	DBPool       *pgxpool.Pool
	Logger       *zap.Logger
	JWTSecret    string

	// Redis is optional; without it rate limiting is per process.
	Redis          *redis.Client
	RateLimitRPS   float64
	RateLimitBurst int

	Gateway              payment.Gateway
	GatewayKeySecret     string
	GatewayWebhookSecret string
	GatewayTimeout       time.Duration
	Currency             string

	Publisher     notify.Publisher
	NotifyTimeout time.Duration

	BookingPolicy booking.Policy
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router         *gin.Engine
	JWTManager     *auth.JWTManager
	BookingService booking.Service
	PaymentService payment.Service
	Dispatcher     *notify.AsyncDispatcher
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	// Init Components
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, time.Hour)
	txr := db.NewPgxTransactor(cfg.DBPool)
	dispatcher := notify.NewAsyncDispatcher(cfg.Publisher, cfg.Logger.Named("notify"), cfg.NotifyTimeout)

	// Ledger repositories
	hallRepo := hall.NewPgxRepository(cfg.DBPool)
	bookingRepo := booking.NewPgxRepository(cfg.DBPool)
	orderRepo := payment.NewPgxRepository(cfg.DBPool)

	// Payment Module
	paymentService := payment.NewService(
		txr, orderRepo, bookingRepo, cfg.Gateway,
		payment.NewSigner(cfg.GatewayKeySecret, cfg.GatewayWebhookSecret),
		dispatcher, cfg.Logger,
		payment.Config{Currency: cfg.Currency, GatewayTimeout: cfg.GatewayTimeout},
	)

	// Booking Module
	bookingService := booking.NewService(
		txr, bookingRepo, hallRepo, paymentService, dispatcher, cfg.Logger, cfg.BookingPolicy,
	)

	var limiter api.Limiter
	if cfg.RateLimitRPS > 0 {
		if cfg.Redis != nil {
			limiter = api.NewRedisLimiter(cfg.Redis, cfg.RateLimitRPS, cfg.RateLimitBurst)
		} else {
			limiter = api.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		}
	}

	// Router
	router := api.NewRouter(api.Config{
		IsProduction:   cfg.IsProduction,
		ProdOrigins:    cfg.ProdOrigins,
		Logger:         cfg.Logger,
		Limiter:        limiter,
		BookingService: bookingService,
		Availability:   booking.NewAvailabilityChecker(bookingRepo),
		PaymentService: paymentService,
		JWTManager:     jwtManager,
	})

	return &Container{
		Router:         router,
		JWTManager:     jwtManager,
		BookingService: bookingService,
		PaymentService: paymentService,
		Dispatcher:     dispatcher,
	}
}
