package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tourbook/internal/cache"
	"tourbook/internal/config"
	"tourbook/internal/database"
	"tourbook/internal/external"
	"tourbook/internal/handlers"
	"tourbook/internal/messaging"
	"tourbook/internal/metrics"
	"tourbook/internal/middleware"
	"tourbook/internal/models"
	"tourbook/internal/repository"
	"tourbook/internal/search"
	"tourbook/internal/service"
)

type Server struct {
	router *gin.Engine
	config *config.Config
	db     *database.DB
	nats   *messaging.NATSClient
	valkey *cache.ValkeyClient
}

// NewServer connects to the backing services and builds the router. Postgres
// is required; NATS, Valkey and Elasticsearch degrade to disabled when absent.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.HTTP.GinMode)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		slog.Warn("NATS unavailable, continuing without domain events", "error", err)
		natsClient = &messaging.NATSClient{}
	}

	s := &Server{config: cfg, db: db, nats: natsClient}
	probes := map[string]handlers.Probe{}

	deps := service.Deps{
		Store:     repository.NewPGStore(db),
		Publisher: natsClient,
		Gateway:   external.NewPaymentClient(cfg.Payment.Gateway),
		Payment: service.PaymentOptions{
			Currency:    cfg.Payment.Currency,
			CallbackURL: cfg.Payment.CallbackURL,
		},
	}

	var principals middleware.PrincipalCache
	if valkey, err := cache.NewValkeyClient(ctx, cfg.Redis); err != nil {
		slog.Warn("Valkey unavailable, auth cache and webhook dedupe disabled", "error", err)
	} else {
		s.valkey = valkey
		principals = valkey
		deps.Deduper = valkey
		probes["valkey"] = valkey.Ping
	}

	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(ctx, cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, booking search falls back to SQL", "error", err)
		} else {
			deps.Searcher = es
			probes["elasticsearch"] = es.HealthCheck
		}
	}

	services := service.NewServices(deps)
	h := handlers.NewHandlers(services.Bookings, services.Payments, handlers.NewHealthChecker(db, probes))

	s.router = NewRouter(h, deps.Store.Repos().Users, principals, cfg.HTTP)
	return s, nil
}

// NewRouter registers middleware and routes. principals may be nil.
func NewRouter(h *handlers.Handlers, users repository.UserRepository, principals middleware.PrincipalCache, cfg config.HTTPConfig) *gin.Engine {
	middleware.UseJSONFieldNames()

	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.ErrorHandler(cfg.DebugErrors),
	)

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")

	// Gateway-facing endpoints carry no user credentials.
	api.GET("/payments/callback", h.PaymentCallback)
	api.POST("/payments/webhook", h.PaymentWebhook)

	authed := api.Group("")
	authed.Use(middleware.BasicAuth(users, principals))
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	bookings := authed.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.PUT("/:id", h.UpdateBooking)
		bookings.DELETE("/:id", h.DeleteBooking)
	}

	payments := authed.Group("/payments")
	{
		payments.POST("", h.InitiatePayment)
		payments.GET("/:id", h.GetPayment)
		payments.PATCH("/:id", adminOnly, h.UpdatePaymentStatus)
		payments.POST("/:id/refund", adminOnly, h.RefundPayment)
		payments.DELETE("/:id", adminOnly, h.DeletePayment)
	}

	authed.GET("/availability/:type/:id", h.CheckAvailability)
	authed.PATCH("/tours/:id/capacity", adminOnly, h.ResizeCapacity(models.KindTour))
	authed.PATCH("/rooms/:id/capacity", adminOnly, h.ResizeCapacity(models.KindRoom))
	authed.PATCH("/flights/:id/capacity", adminOnly, h.ResizeCapacity(models.KindFlight))

	return router
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:    ":" + s.config.HTTP.Port,
		Handler: s.router,
	}
}

func (s *Server) Close() error {
	var errs []error
	if err := s.nats.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close NATS: %w", err))
	}
	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close Valkey: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
