package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Malathy2002/hall-booking-website/internal/auth"
	"github.com/Malathy2002/hall-booking-website/internal/booking"
	bookingHttp "github.com/Malathy2002/hall-booking-website/internal/booking/http"
	"github.com/Malathy2002/hall-booking-website/internal/payment"
	paymentHttp "github.com/Malathy2002/hall-booking-website/internal/payment/http"
)

type Config struct {
	IsProduction bool
	ProdOrigins  string
	Logger       *zap.Logger
	// Limiter is optional; nil disables rate limiting.
	Limiter Limiter

	BookingService booking.Service
	Availability   *booking.AvailabilityChecker
	PaymentService payment.Service
	JWTManager     *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(RequestLogger(cfg.Logger), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.ProdOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	if cfg.Limiter != nil {
		r.Use(RateLimit(cfg.Limiter, cfg.Logger))
	}

	authMiddleware := auth.AuthRequired(cfg.JWTManager)

	bookingHandler := bookingHttp.NewHandler(cfg.BookingService, cfg.Availability)
	paymentHandler := paymentHttp.NewHandler(cfg.PaymentService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware)
		paymentHttp.RegisterRoutes(v1, paymentHandler, authMiddleware)
	}

	return r
}
