package postgres

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func hashToInt64(id int64) int64 {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	h.Write(b[:])
	return int64(h.Sum64() & ((1 << 63) - 1))
}

// lockAccount serializes compound mutations per account within a
// transaction via an advisory xact lock. No-op outside a transaction,
// where the single guarded UPDATE is atomic on its own.
func lockAccount(ctx context.Context, tx repository.Tx, id int64) error {
	t, ok := tx.(pgx.Tx)
	if !ok {
		return nil
	}
	_, err := t.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(id))
	return err
}

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO accounts (telegram_id, balance, referrer_id, created_at, last_seen_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (telegram_id) DO UPDATE SET last_seen_at=$5;`
	_, err := execSQL(ctx, r.pool, tx, q, a.TelegramID, a.Balance, a.ReferrerID, a.CreatedAt, a.LastSeenAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, telegramID int64) (*model.Account, error) {
	q := `SELECT telegram_id, balance, referrer_id, created_at, last_seen_at FROM accounts WHERE telegram_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, telegramID)
	if err != nil {
		return nil, err
	}

	a := &model.Account{}
	if err := row.Scan(&a.TelegramID, &a.Balance, &a.ReferrerID, &a.CreatedAt, &a.LastSeenAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

func (r *accountRepo) DebitIfSufficient(ctx context.Context, tx repository.Tx, telegramID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, domain.ErrInvalidArgument
	}
	if err := lockAccount(ctx, tx, telegramID); err != nil {
		return false, domain.ErrOperationFailed
	}
	const q = `UPDATE accounts SET balance = balance - $2 WHERE telegram_id=$1 AND balance >= $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, telegramID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *accountRepo) Credit(ctx context.Context, tx repository.Tx, telegramID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	if err := lockAccount(ctx, tx, telegramID); err != nil {
		return 0, domain.ErrOperationFailed
	}
	const q = `UPDATE accounts SET balance = balance + $2 WHERE telegram_id=$1 RETURNING balance;`
	row, err := pickRow(ctx, r.pool, tx, q, telegramID, amount)
	if err != nil {
		return 0, err
	}
	var balance int64
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return balance, nil
}

func (r *accountRepo) SetReferrer(ctx context.Context, tx repository.Tx, telegramID, referrerID int64) (bool, error) {
	const q = `UPDATE accounts SET referrer_id=$2 WHERE telegram_id=$1 AND referrer_id IS NULL AND telegram_id <> $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, telegramID, referrerID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
