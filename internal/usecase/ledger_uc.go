// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/repository"
	"telegram-sms-market/internal/infra/metrics"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase is the exclusive owner of balance mutations. Every method
// is atomic with respect to concurrent calls touching the same account or
// activation.
type LedgerUseCase interface {
	// DebitForPurchase checks funds, decrements the balance and records the
	// activation under one transaction boundary. Returns
	// domain.ErrInsufficientFunds or domain.ErrAlreadyExists as expected
	// outcomes; any storage failure leaves the prior committed state intact.
	DebitForPurchase(ctx context.Context, a *model.Activation) error
	// Credit increments the balance and returns the new value.
	Credit(ctx context.Context, accountID, amount int64) (int64, error)
	// SettleAndRefund flips the activation's settled flag false->true with
	// the given outcome and, only on that transition, credits the account.
	// Returns whether this call performed the refund. This is the single
	// choke point shared by the timeout watchdog and the user-cancel path.
	SettleAndRefund(ctx context.Context, activationID string, accountID, amount int64, outcome model.Outcome) (bool, error)
	// FinalizeDelivered settles an activation that delivered at least one
	// code. No credit: the service was rendered.
	FinalizeDelivered(ctx context.Context, activationID string) (bool, error)
}

type ledgerUC struct {
	accounts    repository.AccountRepository
	activations repository.ActivationRepository
	tm          repository.TransactionManager
	log         *zerolog.Logger
}

func NewLedgerUseCase(accounts repository.AccountRepository, activations repository.ActivationRepository, tm repository.TransactionManager, logger *zerolog.Logger) *ledgerUC {
	l := logger.With().Str("component", "LedgerUC").Logger()
	return &ledgerUC{accounts: accounts, activations: activations, tm: tm, log: &l}
}

func (u *ledgerUC) DebitForPurchase(ctx context.Context, a *model.Activation) error {
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.accounts.DebitIfSufficient(ctx, tx, a.AccountID, a.Price)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInsufficientFunds
		}
		return u.activations.Create(ctx, tx, a)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		u.log.Error().Err(err).Str("activation_id", a.ID).Int64("account_id", a.AccountID).Msg("debit for purchase failed")
		return err
	}
	metrics.IncLedgerOp("debit")
	u.log.Info().Str("activation_id", a.ID).Int64("account_id", a.AccountID).Int64("amount", a.Price).Msg("balance debited")
	return nil
}

func (u *ledgerUC) Credit(ctx context.Context, accountID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	var newBalance int64
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		b, err := u.accounts.Credit(ctx, tx, accountID, amount)
		if err != nil {
			return err
		}
		newBalance = b
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.IncLedgerOp("credit")
	u.log.Info().Int64("account_id", accountID).Int64("amount", amount).Int64("balance", newBalance).Msg("balance credited")
	return newBalance, nil
}

func (u *ledgerUC) SettleAndRefund(ctx context.Context, activationID string, accountID, amount int64, outcome model.Outcome) (bool, error) {
	var refunded bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		flipped, err := u.activations.MarkSettled(ctx, tx, activationID, outcome)
		if err != nil {
			return err
		}
		if !flipped {
			return nil // already settled elsewhere, no-op
		}
		if _, err := u.accounts.Credit(ctx, tx, accountID, amount); err != nil {
			return err
		}
		refunded = true
		return nil
	})
	if err != nil {
		u.log.Error().Err(err).Str("activation_id", activationID).Msg("settle and refund failed")
		return false, err
	}
	if refunded {
		metrics.IncActivationOutcome(string(outcome))
		metrics.IncRefund(string(outcome))
		u.log.Info().Str("activation_id", activationID).Int64("amount", amount).Str("outcome", string(outcome)).Msg("activation refunded")
	} else {
		u.log.Debug().Str("activation_id", activationID).Str("outcome", string(outcome)).Msg("already settled")
	}
	return refunded, nil
}

func (u *ledgerUC) FinalizeDelivered(ctx context.Context, activationID string) (bool, error) {
	var flipped bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		f, err := u.activations.MarkSettled(ctx, tx, activationID, model.OutcomeDelivered)
		if err != nil {
			return err
		}
		flipped = f
		return nil
	})
	if err != nil {
		return false, err
	}
	if flipped {
		metrics.IncActivationOutcome(string(model.OutcomeDelivered))
	}
	return flipped, nil
}
