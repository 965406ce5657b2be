package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosspromo_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crosspromo_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crosspromo_in_flight",
		Help: "In-flight HTTP requests",
	})
	SyncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosspromo_sync_attempts_total",
			Help: "Sync attempts by source and outcome",
		}, []string{"source", "outcome"},
	)
	VerifyChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosspromo_verify_checks_total",
			Help: "Completed storefront verification checks by platform and status",
		}, []string{"platform", "status"},
	)
	IconFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosspromo_icon_fetches_total",
			Help: "Icon download attempts by outcome",
		}, []string{"outcome"},
	)
	SnapshotCampaigns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crosspromo_snapshot_campaigns",
		Help: "Campaigns in the current in-memory snapshot",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal, Latency, InFlight, SyncAttempts, VerifyChecks, IconFetches, SnapshotCampaigns)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
