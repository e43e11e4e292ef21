// Package audit records request metadata (never message content or scan
// payloads) in PostgreSQL.
package audit

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Outcomes recorded per request.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeAborted  = "aborted" // client went away mid-stream
	OutcomeRejected = "rejected"
	OutcomeDegraded = "degraded" // detection data dropped, plain prompt used
)

// Entry is one audited request.
type Entry struct {
	ID         int64         `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	Endpoint   string        `json:"endpoint"`
	Status     int           `json:"status"`
	Outcome    string        `json:"outcome"`
	Duration   time.Duration `json:"-"`
	DurationMs float32       `json:"duration_ms"`
	Messages   int           `json:"messages"`
	Detection  bool          `json:"detection"`
	Bytes      int64         `json:"bytes"`
	Provider   string        `json:"provider,omitempty"`
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Nop discards every entry. Used when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }

// Store wraps a pgx connection pool.
type Store struct {
	Pool      *pgxpool.Pool
	retention time.Duration
	logger    *slog.Logger
}

// Connect opens a pool to dsn and runs migrations.
func Connect(ctx context.Context, dsn string, retentionDays int, logger *slog.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	s := &Store{Pool: pool, retention: time.Duration(retentionDays) * 24 * time.Hour, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return s, nil
}

// Migrate executes the embedded SQL migration files.
func (s *Store) Migrate(ctx context.Context) error {
	sql, err := migrations.ReadFile("migrations/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.Pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	s.logger.Info("audit database migrated")
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// Record inserts one entry.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO request_audit (request_id, endpoint, status, outcome, duration_ms, messages, detection, bytes, provider)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		nullable(e.RequestID), e.Endpoint, e.Status, e.Outcome, durationMs(e.Duration), e.Messages, e.Detection, e.Bytes, nullable(e.Provider))
	return err
}

// Recent returns the latest entries for endpoint, newest first. An empty
// endpoint matches all.
func (s *Store) Recent(ctx context.Context, endpoint string, limit int) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, timestamp, request_id, endpoint, status, outcome, duration_ms, messages, detection, bytes, provider
		 FROM request_audit WHERE ($1 = '' OR endpoint = $1) ORDER BY timestamp DESC LIMIT $2`,
		endpoint, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var requestID, provider *string
		if err := rows.Scan(&e.ID, &e.Timestamp, &requestID, &e.Endpoint, &e.Status, &e.Outcome, &e.DurationMs, &e.Messages, &e.Detection, &e.Bytes, &provider); err != nil {
			return nil, err
		}
		if requestID != nil {
			e.RequestID = *requestID
		}
		if provider != nil {
			e.Provider = *provider
		}
		e.Duration = time.Duration(e.DurationMs * float32(time.Millisecond))
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes entries older than the retention period.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx,
		`DELETE FROM request_audit WHERE timestamp < $1`, time.Now().Add(-s.retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RetentionLoop purges old entries every hour until ctx is cancelled.
func (s *Store) RetentionLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				s.logger.Error("audit purge failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("audit entries purged", "count", n)
			}
		}
	}
}

func durationMs(d time.Duration) float32 {
	return float32(d) / float32(time.Millisecond)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
