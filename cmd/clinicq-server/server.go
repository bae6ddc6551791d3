package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/config"
	"github.com/clinicq/clinicq/internal/domain/availability"
	"github.com/clinicq/clinicq/internal/domain/booking"
	"github.com/clinicq/clinicq/internal/domain/clinic"
	"github.com/clinicq/clinicq/internal/platform/apperr"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/metrics"
	"github.com/clinicq/clinicq/internal/platform/middleware"
	"github.com/clinicq/clinicq/internal/platform/queuehub"
	"github.com/clinicq/clinicq/internal/platform/validate"
)

const version = "0.1.0"

type server struct {
	echo   *echo.Echo
	hub    *queuehub.Hub
	broker *queuehub.RedisBroker
	outbox *queuehub.Outbox
}

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// newServer wires the HTTP surface. rdb may be nil, in which case queue
// events stay in-process.
func newServer(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, reg *prometheus.Registry, logger zerolog.Logger) *server {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(reg)
	bookingMetrics := metrics.NewBookingMetrics(reg)
	queueMetrics := metrics.NewQueueMetrics(reg)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", db.OrganizationHeader, auth.DevUserHeader, auth.DevRoleHeader},
	}))
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.BodyLimit("1M"))

	// Public endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	roles := auth.ResolveRoleMiddleware(auth.NewMembershipStore(pool))

	// Request/response routes hold an organization-scoped connection for the
	// request. Streams only resolve the organization.
	apiV1 := e.Group("/api/v1",
		db.TenantMiddleware(pool, cfg.DefaultOrganization), roles,
		middleware.RateLimit(rateLimitCfg), middleware.Audit(logger))
	streams := e.Group("/api/v1", db.OrganizationMiddleware(cfg.DefaultOrganization), roles)
	ws := e.Group("/ws", db.OrganizationMiddleware(cfg.DefaultOrganization), roles)

	// Queue fan-out
	hub := queuehub.NewHub(queuehub.WithBufferSize(cfg.QueueSubscriberBuffer), queuehub.WithMetrics(queueMetrics))
	var publisher queuehub.Publisher = hub
	var broker *queuehub.RedisBroker
	if rdb != nil {
		broker = queuehub.NewRedisBroker(rdb, hub, logger, queueMetrics)
		publisher = broker
	}
	outbox := queuehub.NewOutbox(publisher, queuehub.DefaultOutboxSize, logger, queueMetrics)

	// Reference data
	clinicSvc := clinic.NewService(
		clinic.NewDoctorRepoPG(pool),
		clinic.NewClinicRepoPG(pool),
		clinic.NewAssignmentRepoPG(pool),
		clinic.NewAppointmentTypeRepoPG(pool),
	)
	clinic.NewHandler(clinicSvc).RegisterRoutes(apiV1)

	// Availability and bookings
	bookingRepo := booking.NewRepoPG(pool)
	availabilitySvc := availability.NewService(
		availability.NewRuleRepoPG(pool), clinicSvc, bookingRepo,
		cfg.SlotDurationMinutes, cfg.NextAvailableMaxDays,
	)
	availability.NewHandler(availabilitySvc).RegisterRoutes(apiV1)

	bookingSvc := booking.NewService(bookingRepo, clinicSvc, availabilitySvc, outbox, bookingMetrics, logger)
	booking.NewHandler(bookingSvc).RegisterRoutes(apiV1)

	queuehub.NewHandler(hub, cfg.QueueHeartbeatInterval, cfg.CORSOrigins, logger).RegisterRoutes(streams, ws)

	return &server{echo: e, hub: hub, broker: broker, outbox: outbox}
}
