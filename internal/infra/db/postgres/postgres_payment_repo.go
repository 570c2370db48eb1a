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

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	const q = `
INSERT INTO payment_records (id, provider_payment_id, account_id, amount, status, referral_bonus, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.ProviderPaymentID, p.AccountID, p.Amount, p.Status, p.ReferralBonus, p.CreatedAt)
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

func (r *paymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.PaymentRecord, error) {
	const q = `SELECT id, provider_payment_id, account_id, amount, status, referral_bonus, created_at FROM payment_records WHERE provider_payment_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, providerPaymentID)
	if err != nil {
		return nil, err
	}
	p := &model.PaymentRecord{}
	if err := row.Scan(&p.ID, &p.ProviderPaymentID, &p.AccountID, &p.Amount, &p.Status, &p.ReferralBonus, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}
