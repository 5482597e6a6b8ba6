package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artovix_messages_received_total",
		Help: "Total number of inbound updates by kind",
	}, []string{"kind"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artovix_messages_processed_total",
		Help: "Total number of processed updates",
	}, []string{"status"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artovix_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "artovix_ai_request_duration_seconds",
		Help:    "Duration of inference requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artovix_ai_requests_total",
		Help: "Total number of inference requests",
	}, []string{"op", "status"})

	imageAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artovix_image_provider_attempts_total",
		Help: "Image provider attempts by outcome",
	}, []string{"provider", "status"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artovix_cache_hits_total",
		Help: "Total number of answer cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artovix_cache_misses_total",
		Help: "Total number of answer cache misses",
	})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "artovix_rate_limit_exceeded_total",
		Help: "Total number of rejected requests",
	})

	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "artovix_storage_operations_total",
		Help: "Conversation store operations",
	}, []string{"operation", "status"})

	activeProfiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "artovix_active_profiles",
		Help: "Number of stored user profiles",
	})
)

// Metrics records to the default prometheus registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct{}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordMessageReceived(kind string) {
	if m == nil {
		return
	}
	messagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordMessageProcessed(status string) {
	if m == nil {
		return
	}
	messagesProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCommandExecuted(command string) {
	if m == nil {
		return
	}
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordAIRequest observes one inference call
func (m *Metrics) RecordAIRequest(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	aiRequestDuration.WithLabelValues(op, status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) RecordImageAttempt(provider, status string) {
	if m == nil {
		return
	}
	imageAttempts.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	cacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	cacheMisses.Inc()
}

func (m *Metrics) RecordRateLimitExceeded() {
	if m == nil {
		return
	}
	rateLimitExceeded.Inc()
}

func (m *Metrics) RecordStorageOperation(operation, status string) {
	if m == nil {
		return
	}
	storageOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) SetActiveProfiles(count int) {
	if m == nil {
		return
	}
	activeProfiles.Set(float64(count))
}

// NewMetricsServer serves the prometheus handler and /health
func NewMetricsServer(port int, path string) *http.Server {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
