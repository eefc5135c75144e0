// Package migrate creates the client_tokens table in a shared Postgres database.
package migrate

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/lms-client/migrations"
)

// VersionTable keeps goose bookkeeping apart from any server schema in the same database.
const VersionTable = "lms_client_db_version"

// Up applies pending migrations over pool and returns the resulting schema version.
func Up(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(VersionTable)
	// stdout carries command output
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
