// Package archive persists completed conversation turns to PostgreSQL for
// offline analysis. Archiving is optional and strictly off the hot path:
// writes happen on a background goroutine fed by a bounded queue, and a full
// queue drops the oldest pending record rather than blocking a turn.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one archived conversation turn.
type Record struct {
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// queueSize bounds pending writes before the oldest record is dropped.
const queueSize = 256

// migrations are applied in order on startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversation_turns (
		id         BIGSERIAL PRIMARY KEY,
		session_id TEXT        NOT NULL,
		role       TEXT        NOT NULL,
		content    TEXT        NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS conversation_turns_session_idx
		ON conversation_turns (session_id, created_at)`,
}

// Archive writes turn records to PostgreSQL. Safe for concurrent use.
type Archive struct {
	pool *pgxpool.Pool
	log  *slog.Logger

	queue chan Record
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New connects to the database at dsn, ensures the schema exists, and starts
// the background writer.
func New(ctx context.Context, dsn string, log *slog.Logger) (*Archive, error) {
	if log == nil {
		log = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("archive: migrate: %w", err)
		}
	}

	a := &Archive{
		pool:  pool,
		log:   log,
		queue: make(chan Record, queueSize),
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a, nil
}

// Store queues one record for persistence. Never blocks: when the queue is
// full, the oldest pending record is discarded to make room. Records stored
// after Close are dropped.
func (a *Archive) Store(rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for {
		select {
		case a.queue <- rec:
			return
		default:
		}
		select {
		case dropped := <-a.queue:
			a.log.Warn("archive queue full, dropping oldest record", "session_id", dropped.SessionID)
		default:
		}
	}
}

// Recent returns the most recent turns for a session, newest first.
func (a *Archive) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.pool.Query(ctx,
		`SELECT session_id, role, content, created_at
		 FROM conversation_turns
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.Role, &rec.Content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: rows: %w", err)
	}
	return out, nil
}

// Ping reports database reachability, for the readiness probe.
func (a *Archive) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

// Close drains the queue, stops the writer, and closes the pool. Idempotent.
func (a *Archive) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	a.pool.Close()
}

func (a *Archive) writeLoop() {
	defer a.wg.Done()
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := a.pool.Exec(ctx,
			`INSERT INTO conversation_turns (session_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4)`,
			rec.SessionID, rec.Role, rec.Content, rec.CreatedAt)
		cancel()
		if err != nil {
			a.log.Warn("archive insert failed", "session_id", rec.SessionID, "error", err)
		}
	}
}
