// Package analytics keeps the append-only request log behind /stats
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artovix-tgbot-go/internal/config"
	"github.com/artovix-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Backend persists metric events and answers the window queries.
type Backend interface {
	Insert(ctx context.Context, event models.MetricEvent) error
	// Aggregate counts events strictly after minuteStart and at or after dayStart.
	Aggregate(ctx context.Context, minuteStart, dayStart time.Time) (models.UsageMetrics, error)
	Close() error
}

// NewBackend opens the backend named in cfg
func NewBackend(cfg *config.AnalyticsConfig) (Backend, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteBackend(cfg.Path)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported analytics type: %s", cfg.Type)
	}
}

// Recorder is the counter store. The windows are anchored to its own clock.
type Recorder struct {
	mu      sync.Mutex
	backend Backend
	logger  logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Recorder)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(backend Backend, logger logrus.FieldLogger, opts ...Option) *Recorder {
	r := &Recorder{
		backend: backend,
		logger:  logger.WithField("component", "analytics"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one event. Failures are logged only.
func (r *Recorder) Record(ctx context.Context, userID string, tokens int, requestType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := models.MetricEvent{
		UserID:      userID,
		Timestamp:   r.now(),
		TokenCount:  tokens,
		RequestType: requestType,
	}
	if err := r.backend.Insert(ctx, event); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    requestType,
		}).Error("Failed to record metric")
	}
}

// CurrentMetrics returns the last-minute and since-midnight aggregates,
// or zeros when the log cannot be queried.
func (r *Recorder) CurrentMetrics(ctx context.Context) models.UsageMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	metrics, err := r.backend.Aggregate(ctx, now.Add(-time.Minute), midnight)
	if err != nil {
		r.logger.WithError(err).Error("Failed to query metrics")
		return models.EmptyUsageMetrics()
	}
	if metrics.Breakdown == nil {
		metrics.Breakdown = map[string]int{}
	}
	return metrics
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend.Close()
}

// MemoryBackend keeps events in a slice
type MemoryBackend struct {
	events []models.MetricEvent
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Insert(ctx context.Context, event models.MetricEvent) error {
	event.ID = int64(len(b.events) + 1)
	b.events = append(b.events, event)
	return nil
}

func (b *MemoryBackend) Aggregate(ctx context.Context, minuteStart, dayStart time.Time) (models.UsageMetrics, error) {
	metrics := models.EmptyUsageMetrics()
	for _, e := range b.events {
		if e.Timestamp.After(minuteStart) {
			metrics.RequestsLastMinute++
			metrics.TokensLastMinute += e.TokenCount
		}
		if !e.Timestamp.Before(dayStart) {
			metrics.RequestsToday++
			metrics.Breakdown[e.RequestType]++
		}
	}
	return metrics, nil
}

func (b *MemoryBackend) Close() error { return nil }
