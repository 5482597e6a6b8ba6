package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/artovix-tgbot-go/internal/models"

	// sqlite driver
	_ "modernc.org/sqlite"
)

// timestamps are stored as fixed-width UTC text so they compare lexically
const timeLayout = "2006-01-02 15:04:05.000000"

// SQLiteBackend stores events in the metrics table
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) createSchema() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			request_type TEXT NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON metrics(timestamp)",
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBackend) Insert(ctx context.Context, event models.MetricEvent) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO metrics (user_id, timestamp, tokens, request_type) VALUES (?, ?, ?, ?)",
		event.UserID, formatTime(event.Timestamp), event.TokenCount, event.RequestType)
	return err
}

func (b *SQLiteBackend) Aggregate(ctx context.Context, minuteStart, dayStart time.Time) (models.UsageMetrics, error) {
	metrics := models.EmptyUsageMetrics()

	row := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(tokens), 0) FROM metrics WHERE timestamp > ?",
		formatTime(minuteStart))
	if err := row.Scan(&metrics.RequestsLastMinute, &metrics.TokensLastMinute); err != nil {
		return models.EmptyUsageMetrics(), err
	}

	rows, err := b.db.QueryContext(ctx,
		"SELECT request_type, COUNT(*) FROM metrics WHERE timestamp >= ? GROUP BY request_type",
		formatTime(dayStart))
	if err != nil {
		return models.EmptyUsageMetrics(), err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			requestType string
			count       int
		)
		if err := rows.Scan(&requestType, &count); err != nil {
			return models.EmptyUsageMetrics(), err
		}
		metrics.Breakdown[requestType] = count
		metrics.RequestsToday += count
	}
	if err := rows.Err(); err != nil {
		return models.EmptyUsageMetrics(), err
	}
	return metrics, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
