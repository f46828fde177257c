package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLogStore archives ended calls in PostgreSQL.
type PostgresLogStore struct {
	pool *pgxpool.Pool
}

func NewPostgresLogStore(ctx context.Context, databaseURL string) (*PostgresLogStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresLogStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS call_logs (
		call_id TEXT PRIMARY KEY,
		phone TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		transcript TEXT NOT NULL
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) SaveCallLog(ctx context.Context, log CallLog) error {
	if log.EndedAt.IsZero() {
		log.EndedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_logs (call_id, phone, customer_name, outcome, duration_seconds, ended_at, transcript)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (call_id) DO NOTHING`,
		log.CallID,
		log.Phone,
		log.CustomerName,
		log.Outcome,
		log.DurationSeconds,
		log.EndedAt,
		log.Transcript,
	)
	if err != nil {
		return fmt.Errorf("save call log: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) RecentCallLogs(ctx context.Context, limit int) ([]CallLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, phone, customer_name, outcome, duration_seconds, ended_at, transcript
		 FROM call_logs ORDER BY ended_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query call logs: %w", err)
	}
	defer rows.Close()

	logs := make([]CallLog, 0, limit)
	for rows.Next() {
		var l CallLog
		if err := rows.Scan(&l.CallID, &l.Phone, &l.CustomerName, &l.Outcome, &l.DurationSeconds, &l.EndedAt, &l.Transcript); err != nil {
			return nil, fmt.Errorf("scan call log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call logs: %w", err)
	}
	return logs, nil
}

func (s *PostgresLogStore) Close() error {
	s.pool.Close()
	return nil
}
