package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Booking BookingService
	Queue   QueueService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
	Log     zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/appointments", reserveHandler(cfg.Booking))
	r.Post("/appointments/{id}/cancel", cancelHandler(cfg.Booking))
	r.Post("/appointments/{id}/check-in", checkInHandler(cfg.Queue))
	r.Post("/appointments/{id}/complete", completeHandler(cfg.Queue))
	r.Post("/appointments/{id}/no-show", noShowHandler(cfg.Queue))

	r.Post("/doctors/{id}/queue/advance", advanceHandler(cfg.Queue))
	r.Get("/doctors/{id}/queue", queueStatusHandler(cfg.Queue))

	return r
}
