package repository

import (
	"context"

	"telegram-sms-market/internal/domain/model"
)

// AccountRepository owns balances. All balance mutations are single guarded
// statements so two workers racing on one account cannot both succeed; the
// caller never does read-modify-write.
type AccountRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Account) error
	FindByID(ctx context.Context, tx Tx, telegramID int64) (*model.Account, error)
	// DebitIfSufficient atomically checks balance >= amount and decrements.
	// Returns false without mutation when funds are insufficient.
	DebitIfSufficient(ctx context.Context, tx Tx, telegramID int64, amount int64) (bool, error)
	// Credit atomically increments the balance and returns the new value.
	Credit(ctx context.Context, tx Tx, telegramID int64, amount int64) (int64, error)
	// SetReferrer records the referrer once; later calls are no-ops.
	SetReferrer(ctx context.Context, tx Tx, telegramID, referrerID int64) (bool, error)
}
