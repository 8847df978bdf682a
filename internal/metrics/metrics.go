// Package metrics holds the Prometheus collectors for the service. They are
// registered on the default registry at init and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SignupTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "signup_total",
		Help: "Accounts created.",
	})

	LoginSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_success_total",
		Help: "Successful logins by method (password, recovery).",
	}, []string{"method"})

	LoginFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_failure_total",
		Help: "Failed logins by reason.",
	}, []string{"reason"})

	PhotosUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "photos_uploaded_total",
		Help: "Photos created.",
	})

	LikesToggled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "likes_toggled_total",
		Help: "Like toggles by resulting state (liked, unliked).",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(
		RequestDuration,
		SignupTotal,
		LoginSuccess,
		LoginFailure,
		PhotosUploaded,
		LikesToggled,
	)
}
