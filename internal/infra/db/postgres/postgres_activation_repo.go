package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/repository"
)

var _ repository.ActivationRepository = (*activationRepo)(nil)

type activationRepo struct{ pool *pgxpool.Pool }

func NewActivationRepo(pool *pgxpool.Pool) *activationRepo {
	return &activationRepo{pool: pool}
}

const activationColumns = `id, account_id, provider, service_key, country, price, full_number, local_number, codes, cancel_requested, settled, COALESCE(outcome,''), created_at`

func scanActivation(row pgx.Row) (*model.Activation, error) {
	a := &model.Activation{}
	var outcome string
	if err := row.Scan(&a.ID, &a.AccountID, &a.Provider, &a.ServiceKey, &a.Country, &a.Price, &a.FullNumber, &a.LocalNumber, &a.Codes, &a.CancelRequested, &a.Settled, &outcome, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	a.Outcome = model.Outcome(outcome)
	return a, nil
}

func (r *activationRepo) Create(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	const q = `
INSERT INTO activations (id, account_id, provider, service_key, country, price, full_number, local_number, codes, cancel_requested, settled, outcome, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13);`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.AccountID, a.Provider, a.ServiceKey, a.Country, a.Price,
		a.FullNumber, a.LocalNumber, a.Codes, a.CancelRequested, a.Settled, string(a.Outcome), a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *activationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Activation, error) {
	q := `SELECT ` + activationColumns + ` FROM activations WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanActivation(row)
}

func (r *activationRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID int64) ([]*model.Activation, error) {
	const q = `SELECT ` + activationColumns + ` FROM activations WHERE account_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectActivations(rows)
}

func (r *activationRepo) ListOpen(ctx context.Context, tx repository.Tx, limit int) ([]*model.Activation, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `SELECT ` + activationColumns + ` FROM activations WHERE NOT settled ORDER BY created_at ASC LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectActivations(rows)
}

func collectActivations(rows pgx.Rows) ([]*model.Activation, error) {
	var out []*model.Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *activationRepo) AppendCode(ctx context.Context, tx repository.Tx, id, code string) (bool, error) {
	if code == "" {
		return false, domain.ErrInvalidArgument
	}
	// Guarded append: duplicates and settled activations leave zero rows.
	const q = `
UPDATE activations SET codes = array_append(codes, $2)
 WHERE id=$1 AND NOT settled AND NOT (codes @> ARRAY[$2]);`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *activationRepo) MarkCancelRequested(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE activations SET cancel_requested = TRUE
 WHERE id=$1 AND NOT settled AND NOT cancel_requested AND cardinality(codes) = 0;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

// MarkSettled atomically flips settled false->true and records the outcome.
// This single statement is what guarantees at-most-once refunds.
func (r *activationRepo) MarkSettled(ctx context.Context, tx repository.Tx, id string, outcome model.Outcome) (bool, error) {
	const q = `UPDATE activations SET settled = TRUE, outcome = $2 WHERE id=$1 AND NOT settled;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(outcome))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}
