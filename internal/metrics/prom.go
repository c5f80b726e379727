package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebin_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebin_paste_served_total",
		Help: "no. of retrievals that returned content",
	})
	PasteRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastebin_paste_rejected_total",
			Help: "no. of retrievals refused, by reason",
		},
		[]string{"reason"},
	)
	PastePurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastebin_paste_purged_total",
		Help: "no. of dead pastes removed by the janitor",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pastebin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
