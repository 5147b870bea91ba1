package postgres

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

type txKey struct{}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// DB hands repositories either the pool or the transaction carried by the
// context, so services compose repository calls inside WithinTx.
type DB struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func New(log *slog.Logger, pool *pgxpool.Pool) *DB {
	return &DB{log: log, pool: pool}
}

func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return pool, nil
}

// WithinTx runs fn in a transaction. A nested call joins the outer
// transaction.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (d *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.pool
}

// forUpdate appends a row lock when the caller runs inside a transaction.
// Outside one the lock would be released immediately, so it is skipped.
func (d *DB) forUpdate(ctx context.Context, sql string) string {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return sql + " FOR UPDATE"
	}
	return sql
}

// exec runs a single-row write and reports NotFound when nothing matched.
func (d *DB) exec(ctx context.Context, what, sql string, args ...any) error {
	tag, err := d.q(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return translate(err, what)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(what)
	}
	return nil
}

// translate maps driver errors onto the application taxonomy.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return apperr.Duplicate(what)
		case checkViolation:
			return apperr.Validation("%s violates %s", what, pgErr.ConstraintName)
		}
	}
	return errors.Wrapf(err, "%s", what)
}

// Migrate applies the embedded migrations that have not run yet, each in its
// own transaction.
func Migrate(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			log.Info("migration applied", "version", name)
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "migrate %s", name)
		}
	}
	return nil
}
