// Package pg is the Postgres ledger store.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/model"
	"github.com/v-starostin/tacbridge/internal/storage"
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

var _ bridge.Store = (*Storage)(nil)

type Storage struct {
	l  *slog.Logger
	db *sql.DB
}

func New(l *slog.Logger, db *sql.DB) *Storage {
	return &Storage{l, db}
}

// Connect opens a pgx backed *sql.DB and checks that the server answers.
func Connect(ctx context.Context, uri string) (*sql.DB, error) {
	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies every pending migration found at source, e.g. "file://db/migrations".
func Migrate(db *sql.DB, source string) error {
	instance, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", instance)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *Storage) Atomic(ctx context.Context, fn func(ctx context.Context, ledger bridge.Ledger, journal bridge.Journal) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
		if err != nil {
			s.l.Debug("Transaction rolled back", slog.String("error", err.Error()))
		}
	}()

	t := &ledgerTx{tx: tx}
	if err = fn(ctx, t, t); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true

	return nil
}

func (s *Storage) AddUser(ctx context.Context, u model.User, balance uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	query := "INSERT INTO users (id, login, password) VALUES ($1, $2, $3)"
	if _, err = tx.ExecContext(ctx, query, u.ID, u.Login, u.Password); err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}

	query = "INSERT INTO balances (account_id, amount) VALUES ($1, $2::numeric)"
	if _, err = tx.ExecContext(ctx, query, u.ID, formatAmount(balance)); err != nil {
		_ = tx.Rollback()
		return mapError(err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	return nil
}

func (s *Storage) GetUser(ctx context.Context, login string) (*model.User, error) {
	var u model.User
	query := "SELECT id, login, password FROM users WHERE login = $1"
	if err := s.db.QueryRowContext(ctx, query, login).Scan(&u.ID, &u.Login, &u.Password); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &u, nil
}

func (s *Storage) Balance(ctx context.Context, account uuid.UUID) (uint64, error) {
	return queryAmount(ctx, s.db, "SELECT amount::text FROM balances WHERE account_id = $1", account)
}

func (s *Storage) Allowance(ctx context.Context, owner, spender uuid.UUID) (uint64, error) {
	query := "SELECT amount::text FROM allowances WHERE owner_id = $1 AND spender_id = $2"
	return queryAmount(ctx, s.db, query, owner, spender)
}

func (s *Storage) Approve(ctx context.Context, owner, spender uuid.UUID, amount uint64) error {
	query := `INSERT INTO allowances (owner_id, spender_id, amount) VALUES ($1, $2, $3::numeric)
		ON CONFLICT (owner_id, spender_id) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := s.db.ExecContext(ctx, query, owner, spender, formatAmount(amount)); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Storage) Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error] {
	return func(yield func(model.Conversion, error) bool) {
		var caller, limit any
		if filter.Caller != uuid.Nil {
			caller = filter.Caller
		}
		if filter.Limit > 0 {
			limit = filter.Limit
		}

		query := `SELECT seq, caller_id, source_amount::text, target_amount::text, rate::text, created_at
			FROM conversions WHERE ($1::uuid IS NULL OR caller_id = $1::uuid) ORDER BY seq LIMIT $2`
		raws, err := s.db.QueryContext(ctx, query, caller, limit)
		if err != nil {
			yield(model.Conversion{}, err)
			return
		}
		defer raws.Close()

		for raws.Next() {
			c, err := scanConversion(raws)
			if err != nil {
				yield(model.Conversion{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}

		if err = raws.Err(); err != nil {
			yield(model.Conversion{}, err)
		}
	}
}

func (s *Storage) Pending(ctx context.Context, limit int) ([]model.Conversion, error) {
	var l any
	if limit > 0 {
		l = limit
	}

	query := `SELECT c.seq, c.caller_id, c.source_amount::text, c.target_amount::text, c.rate::text, c.created_at
		FROM outbox o JOIN conversions c ON c.seq = o.seq ORDER BY o.seq LIMIT $1`
	raws, err := s.db.QueryContext(ctx, query, l)
	if err != nil {
		return nil, err
	}
	defer raws.Close()

	conversions := make([]model.Conversion, 0)
	for raws.Next() {
		c, err := scanConversion(raws)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, c)
	}

	if err = raws.Err(); err != nil {
		return nil, err
	}

	return conversions, nil
}

func (s *Storage) MarkPublished(ctx context.Context, seq uint64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM outbox WHERE seq = $1", seq)
	return err
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) TransferFrom(ctx context.Context, from, to uuid.UUID, amount uint64) (bool, error) {
	if amount == 0 {
		return true, nil
	}

	query := "SELECT amount::text FROM allowances WHERE owner_id = $1 AND spender_id = $2 FOR UPDATE"
	allowance, err := queryAmount(ctx, t.tx, query, from, to)
	if err != nil {
		return false, err
	}
	if allowance < amount {
		return false, nil
	}

	balance, err := queryAmount(ctx, t.tx, "SELECT amount::text FROM balances WHERE account_id = $1 FOR UPDATE", from)
	if err != nil {
		return false, err
	}
	if balance < amount {
		return false, nil
	}

	sum := formatAmount(amount)

	query = "UPDATE allowances SET amount = amount - $3::numeric WHERE owner_id = $1 AND spender_id = $2"
	if _, err = t.tx.ExecContext(ctx, query, from, to, sum); err != nil {
		return false, mapError(err)
	}

	query = "UPDATE balances SET amount = amount - $2::numeric WHERE account_id = $1"
	if _, err = t.tx.ExecContext(ctx, query, from, sum); err != nil {
		return false, mapError(err)
	}

	query = `INSERT INTO balances (account_id, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (account_id) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`
	if _, err = t.tx.ExecContext(ctx, query, to, sum); err != nil {
		return false, mapError(err)
	}

	return true, nil
}

func (t *ledgerTx) Append(ctx context.Context, c model.Conversion) (model.Conversion, error) {
	query := `INSERT INTO conversions (caller_id, source_amount, target_amount, rate)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric) RETURNING seq, created_at`
	err := t.tx.QueryRowContext(ctx, query, c.Caller, formatAmount(c.SourceAmount), formatAmount(c.TargetAmount), formatAmount(c.Rate)).
		Scan(&c.Seq, &c.CreatedAt)
	if err != nil {
		return model.Conversion{}, mapError(err)
	}

	if _, err = t.tx.ExecContext(ctx, "INSERT INTO outbox (seq) VALUES ($1)", c.Seq); err != nil {
		return model.Conversion{}, err
	}

	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryAmount reads a single numeric column. A missing row reads as zero.
func queryAmount(ctx context.Context, q queryer, query string, args ...any) (uint64, error) {
	var raw string
	if err := q.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return parseAmount(raw)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(row scanner) (model.Conversion, error) {
	var (
		c                    model.Conversion
		source, target, rate string
	)
	if err := row.Scan(&c.Seq, &c.Caller, &source, &target, &rate, &c.CreatedAt); err != nil {
		return model.Conversion{}, err
	}

	var err error
	if c.SourceAmount, err = parseAmount(source); err != nil {
		return model.Conversion{}, err
	}
	if c.TargetAmount, err = parseAmount(target); err != nil {
		return model.Conversion{}, err
	}
	if c.Rate, err = parseAmount(rate); err != nil {
		return model.Conversion{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()

	return c, nil
}

func parseAmount(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", storage.ErrUserExists, pgErr.ConstraintName)
		case codeCheckViolation:
			return fmt.Errorf("%w: %s", storage.ErrAmountTooBig, pgErr.ConstraintName)
		}
	}
	return err
}
