package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"subledger/internal/subscription"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const upsertSuffix = "ON CONFLICT (account) DO UPDATE SET " +
	"expires_at = EXCLUDED.expires_at, auto_renew = EXCLUDED.auto_renew, updated_at = EXCLUDED.updated_at"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		account    TEXT PRIMARY KEY,
		expires_at BIGINT NOT NULL DEFAULT 0,
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_auto_renew ON subscriptions (auto_renew, expires_at)`,
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository stores records in a `subscriptions` table. The same code
// serves PostgreSQL and SQLite; only placeholders and row locking differ.
type SQLRepository struct {
	db      *sql.DB
	q       queryer
	tx      *sql.Tx
	dialect Dialect
	builder sq.StatementBuilderType
	now     func() time.Time
}

func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	placeholder := sq.PlaceholderFormat(sq.Dollar)
	if dialect == DialectSQLite {
		placeholder = sq.Question
	}
	return &SQLRepository{
		db:      db,
		q:       db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     time.Now,
	}
}

// Migrate creates the table and index when missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate subscriptions: %w", err)
		}
	}
	return nil
}

func (r *SQLRepository) Get(ctx context.Context, account string) (subscription.Record, error) {
	b := r.builder.Select("account", "expires_at", "auto_renew").
		From("subscriptions").
		Where(sq.Eq{"account": account})
	if r.tx != nil && r.dialect == DialectPostgres {
		// FOR UPDATE locks nothing on a missing row, so make sure one exists
		if err := r.ensureRow(ctx, account); err != nil {
			return subscription.Record{}, err
		}
		b = b.Suffix("FOR UPDATE")
	}

	query, args, err := b.ToSql()
	if err != nil {
		return subscription.Record{}, fmt.Errorf("build select: %w", err)
	}

	var rec subscription.Record
	err = r.q.QueryRowContext(ctx, query, args...).Scan(&rec.Account, &rec.ExpiresAt, &rec.AutoRenew)
	if errors.Is(err, sql.ErrNoRows) {
		return subscription.Record{Account: account}, nil
	}
	if err != nil {
		return subscription.Record{}, fmt.Errorf("get subscription %s: %w", account, err)
	}
	return rec, nil
}

func (r *SQLRepository) ensureRow(ctx context.Context, account string) error {
	query, args, err := r.builder.Insert("subscriptions").
		Columns("account", "updated_at").
		Values(account, r.now().Unix()).
		Suffix("ON CONFLICT (account) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build row insert: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create subscription row %s: %w", account, err)
	}
	return nil
}

func (r *SQLRepository) Set(ctx context.Context, account string, rec subscription.Record) error {
	query, args, err := r.builder.Insert("subscriptions").
		Columns("account", "expires_at", "auto_renew", "updated_at").
		Values(account, rec.ExpiresAt, rec.AutoRenew, r.now().Unix()).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set subscription %s: %w", account, err)
	}
	return nil
}

func (r *SQLRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx subscription.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.beginTransaction(ctx)
	if err != nil {
		return err
	}

	txRepo := *r
	txRepo.q = tx
	txRepo.tx = tx

	if err := fn(ctx, &txRepo); err != nil {
		r.rollback(tx)
		return err
	}
	return r.commit(tx)
}

func (r *SQLRepository) LapsedAutoRenew(ctx context.Context, now time.Time, after subscription.Cursor, limit int) ([]subscription.Record, error) {
	b := r.builder.Select("account", "expires_at", "auto_renew").
		From("subscriptions").
		Where(sq.Eq{"auto_renew": true}).
		Where(sq.LtOrEq{"expires_at": now.Unix()})
	if !after.IsZero() {
		b = b.Where(sq.Or{
			sq.Gt{"expires_at": after.ExpiresAt},
			sq.And{sq.Eq{"expires_at": after.ExpiresAt}, sq.Gt{"account": after.Account}},
		})
	}
	b = b.OrderBy("expires_at ASC", "account ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var recs []subscription.Record
	for rows.Next() {
		var rec subscription.Record
		if err := rows.Scan(&rec.Account, &rec.ExpiresAt, &rec.AutoRenew); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return recs, nil
}

func (r *SQLRepository) beginTransaction(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLRepository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Warn().Err(err).Msg("subscription transaction rollback failed")
	}
}

func (r *SQLRepository) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
