package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres implements Durable on a pgx connection pool.
// Profile values live in profile_kv; transcript entries in transcript_log,
// which is append-only and never compacted here.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, runs pending migrations and returns the store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if err := migrate(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// migrate applies embedded goose migrations through database/sql.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres open for migrate: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Get returns the value for key if present.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM profile_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres get: %w", err)
	}
	return value, true, nil
}

// Set stores value under key, overwriting any previous value.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO profile_kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

// Append adds entry to the log under key.
func (p *Postgres) Append(ctx context.Context, key string, entry []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO transcript_log (key, entry) VALUES ($1, $2)`, key, entry)
	if err != nil {
		return fmt.Errorf("postgres append: %w", err)
	}
	return nil
}

// List returns log entries for key in append order.
func (p *Postgres) List(ctx context.Context, key string, limit int) ([][]byte, error) {
	query := `SELECT entry FROM transcript_log WHERE key = $1 ORDER BY id`
	args := []any{key}
	if limit > 0 {
		// Most recent limit entries, still returned oldest-first.
		query = `SELECT entry FROM (
			SELECT id, entry FROM transcript_log WHERE key = $1 ORDER BY id DESC LIMIT $2
		) sub ORDER BY id`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres list: %w", err)
	}
	defer rows.Close()

	var entries [][]byte
	for rows.Next() {
		var entry []byte
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("postgres list scan: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres list rows: %w", err)
	}
	return entries, nil
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Verify Postgres implements Durable at compile time.
var _ Durable = (*Postgres)(nil)
