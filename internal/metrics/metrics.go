package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_reservations_total",
		Help: "Slot reservation attempts by outcome.",
	}, []string{"result"})

	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_cancellations_total",
		Help: "Appointment cancellation attempts by outcome.",
	}, []string{"result"})

	CheckInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinic_check_ins_total",
		Help: "Successful patient check-ins, duplicates included.",
	})

	QueueAdvancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_queue_advances_total",
		Help: "Queue advance calls by outcome.",
	}, []string{"result"})

	NoShowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinic_no_shows_total",
		Help: "Appointments marked as no-show.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinic_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
)
