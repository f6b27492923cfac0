package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/identity"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/health"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/middleware"
)

// ServiceName labels HTTP metrics and spans.
const ServiceName = "order-engine"

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Orders     OrderService
	Settlement SettlementService
	Checkout   CheckoutService
	Reconciler NotificationIngester
	Verifier   identity.Verifier
	Health     *health.Handler
	Logger     *slog.Logger

	CORS       middleware.CORSConfig
	PprofCIDRs []string
	// EnableSimulation mounts the development-only simulate-payment route.
	EnableSimulation bool
	WebhookRPS       float64
	WebhookBurst     int
}

// NewRouter creates a chi router with all order engine routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	orderHandler := NewOrderHandler(cfg.Orders, cfg.Settlement, cfg.Checkout, logger)
	adminHandler := NewAdminHandler(cfg.Orders, cfg.Settlement, logger)
	webhookHandler := NewWebhookHandler(cfg.Reconciler, logger)
	auth := middleware.Auth(identity.TokenValidator(cfg.Verifier))

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth)

		r.Post("/", orderHandler.CreateOrder)
		r.Get("/", orderHandler.ListOrders)
		r.Get("/{id}", orderHandler.GetOrder)
		r.Get("/{id}/status", orderHandler.GetOrderStatus)
		r.Post("/{id}/checkout", orderHandler.Checkout)
		if cfg.EnableSimulation {
			r.Post("/{id}/simulate-payment", orderHandler.SimulatePayment)
		}
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth)
		r.Use(middleware.RequireRole(identity.RoleAdmin))

		r.Put("/orders/{id}/status", adminHandler.SetOrderStatus)
		r.Get("/inventory/{id}", adminHandler.GetInventoryItem)
	})

	// Providers authenticate with a body signature, not a bearer token.
	r.With(middleware.RateLimit(cfg.WebhookRPS, cfg.WebhookBurst, logger)).
		Post("/api/v1/webhooks/payments", webhookHandler.Payments)

	return r
}
