// File: internal/usecase/account_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/repository"
)

var _ AccountUseCase = (*accountUC)(nil)

// AccountUseCase covers account registration and lookups for the front-end.
type AccountUseCase interface {
	// EnsureAccount returns the account, creating it on first interaction.
	// referrerID attaches only while the account has none and is never
	// overwritten afterwards.
	EnsureAccount(ctx context.Context, telegramID int64, referrerID *int64) (*model.Account, error)
	Balance(ctx context.Context, telegramID int64) (int64, error)
	OwnedActivations(ctx context.Context, telegramID int64) ([]*model.Activation, error)
}

type accountUC struct {
	accounts    repository.AccountRepository
	activations repository.ActivationRepository
	log         *zerolog.Logger
}

func NewAccountUseCase(accounts repository.AccountRepository, activations repository.ActivationRepository, logger *zerolog.Logger) *accountUC {
	l := logger.With().Str("component", "AccountUC").Logger()
	return &accountUC{accounts: accounts, activations: activations, log: &l}
}

func (u *accountUC) EnsureAccount(ctx context.Context, telegramID int64, referrerID *int64) (*model.Account, error) {
	a, err := u.accounts.FindByID(ctx, nil, telegramID)
	if err == nil {
		// A referral link opened by a pre-existing account still attaches,
		// but only once; the guarded update keeps the first referrer.
		if referrerID != nil && a.ReferrerID == nil && *referrerID != telegramID {
			if ok, serr := u.accounts.SetReferrer(ctx, nil, telegramID, *referrerID); serr == nil && ok {
				a.ReferrerID = referrerID
			}
		}
		a.Touch()
		_ = u.accounts.Save(ctx, nil, a)
		return a, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	a, err = model.NewAccount(telegramID, referrerID)
	if err != nil {
		return nil, err
	}
	if err := u.accounts.Save(ctx, nil, a); err != nil {
		return nil, err
	}
	u.log.Info().Int64("account_id", telegramID).Bool("referred", referrerID != nil).Msg("account created")
	return a, nil
}

func (u *accountUC) Balance(ctx context.Context, telegramID int64) (int64, error) {
	a, err := u.accounts.FindByID(ctx, nil, telegramID)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (u *accountUC) OwnedActivations(ctx context.Context, telegramID int64) ([]*model.Activation, error) {
	return u.activations.ListByAccount(ctx, nil, telegramID)
}
