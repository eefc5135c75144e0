package tokenstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps one row per origin in client_tokens (see migrations).
type Postgres struct {
	pool   pgxQuerier
	origin string
}

// NewPostgres constructs a PostgreSQL-backed store.
func NewPostgres(pool *pgxpool.Pool, origin string) *Postgres {
	return &Postgres{pool: pool, origin: origin}
}

// NewPostgresWithQuerier constructs a PostgreSQL-backed store over any pgx querier.
func NewPostgresWithQuerier(q pgxQuerier, origin string) *Postgres {
	return &Postgres{pool: q, origin: origin}
}

func (p *Postgres) Get(ctx context.Context) (string, error) {
	const q = `SELECT access_token FROM client_tokens WHERE origin=$1`
	var tok string
	err := p.pool.QueryRow(ctx, q, p.origin).Scan(&tok)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return tok, err
}

func (p *Postgres) Set(ctx context.Context, token string) error {
	const q = `
INSERT INTO client_tokens (origin, access_token, expires_at, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (origin)
DO UPDATE SET access_token=EXCLUDED.access_token, expires_at=EXCLUDED.expires_at, updated_at=now()`
	var exp *time.Time
	if t, ok := ExpiresAt(token); ok {
		exp = &t
	}
	_, err := p.pool.Exec(ctx, q, p.origin, token, exp)
	return err
}

func (p *Postgres) Clear(ctx context.Context) error {
	const q = `DELETE FROM client_tokens WHERE origin=$1`
	_, err := p.pool.Exec(ctx, q, p.origin)
	return err
}

// OpenPostgres connects a pool for dsn, runs prepare on it (may be nil) and
// returns the store with its closer.
func OpenPostgres(ctx context.Context, dsn, origin string, prepare func(context.Context, *pgxpool.Pool) error) (*Postgres, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if prepare != nil {
		if err := prepare(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return NewPostgres(pool, origin), pool.Close, nil
}
