// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
	"telegram-sms-market/internal/domain/ports/repository"
	"telegram-sms-market/internal/infra/metrics"
)

var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentResult classifies the outcome of one webhook delivery.
type PaymentResult string

const (
	PaymentProcessed        PaymentResult = "processed"
	PaymentAlreadyProcessed PaymentResult = "already_processed"
	PaymentNotApproved      PaymentResult = "not_approved"
)

// Locker is the distributed lock used as a fast guard against concurrent
// webhook redeliveries. The payment record's unique key is authoritative;
// the lock only spares a useless gateway round-trip.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentUseCase handles balance top-ups: charge creation and the
// idempotent webhook reconciliation path.
type PaymentUseCase interface {
	// InitiateTopUp opens a gateway charge and returns the URL to pay at.
	InitiateTopUp(ctx context.Context, accountID int64, amount int64) (payURL string, err error)
	// HandlePaymentEvent processes one webhook notification. Replays of an
	// already-credited payment id are no-ops reported as AlreadyProcessed.
	HandlePaymentEvent(ctx context.Context, providerPaymentID string) (PaymentResult, error)
}

type paymentUC struct {
	payments    repository.PaymentRepository
	accounts    repository.AccountRepository
	ledger      LedgerUseCase
	gateway     adapter.PaymentGateway
	tm          repository.TransactionManager
	sink        adapter.NotificationSink
	locker      Locker
	referralPct int64 // percent of the payment credited to the referrer
	log         *zerolog.Logger
}

func NewPaymentUseCase(payments repository.PaymentRepository, accounts repository.AccountRepository, ledger LedgerUseCase, gateway adapter.PaymentGateway, tm repository.TransactionManager, sink adapter.NotificationSink, locker Locker, referralPct int64, logger *zerolog.Logger) *paymentUC {
	if referralPct < 0 || referralPct > 100 {
		referralPct = 0
	}
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{
		payments:    payments,
		accounts:    accounts,
		ledger:      ledger,
		gateway:     gateway,
		tm:          tm,
		sink:        sink,
		locker:      locker,
		referralPct: referralPct,
		log:         &l,
	}
}

func (u *paymentUC) InitiateTopUp(ctx context.Context, accountID int64, amount int64) (string, error) {
	if amount <= 0 {
		return "", domain.ErrInvalidArgument
	}
	if _, err := u.accounts.FindByID(ctx, nil, accountID); err != nil {
		return "", err
	}
	chargeID, payURL, err := u.gateway.CreateCharge(ctx, accountID, amount, "Recarga de saldo")
	if err != nil {
		metrics.IncPayment("initiate_failed")
		return "", fmt.Errorf("create charge: %w", err)
	}
	metrics.IncPayment("initiated")
	u.log.Info().Int64("account_id", accountID).Int64("amount", amount).Str("charge_id", chargeID).Msg("top-up initiated")
	return payURL, nil
}

func (u *paymentUC) HandlePaymentEvent(ctx context.Context, providerPaymentID string) (PaymentResult, error) {
	if providerPaymentID == "" {
		return "", domain.ErrInvalidArgument
	}

	if u.locker != nil {
		token, err := u.locker.TryLock(ctx, "payment:"+providerPaymentID, 30*time.Second)
		switch {
		case err == nil:
			defer func() { _ = u.locker.Unlock(ctx, "payment:"+providerPaymentID, token) }()
		case errors.Is(err, domain.ErrLockBusy):
			// A concurrent delivery of the same id is being handled; the
			// gateway will retry if that one fails.
			u.log.Debug().Str("payment_id", providerPaymentID).Msg("payment id locked by concurrent delivery")
			return PaymentAlreadyProcessed, nil
		default:
			// Lock store unreachable. The record's unique key keeps the path
			// idempotent, so proceed without the fast guard rather than
			// reporting a final outcome the gateway would never retry.
			u.log.Warn().Err(err).Str("payment_id", providerPaymentID).Msg("payment lock unavailable, proceeding without it")
		}
	}

	// Idempotency guard: seen ids are final.
	if _, err := u.payments.FindByProviderPaymentID(ctx, nil, providerPaymentID); err == nil {
		u.log.Debug().Str("payment_id", providerPaymentID).Msg("duplicate webhook delivery ignored")
		return PaymentAlreadyProcessed, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	// Authoritative status from the gateway; the webhook body is a hint.
	info, err := u.gateway.FetchPayment(ctx, providerPaymentID)
	if err != nil {
		return "", fmt.Errorf("fetch payment %s: %w", providerPaymentID, err)
	}
	if info.Status != model.PaymentStatusApproved {
		// Not recorded: a later approval must still be processable.
		metrics.IncPayment(string(info.Status))
		return PaymentNotApproved, nil
	}

	acct, err := u.accountFor(ctx, info.AccountID)
	if err != nil {
		return "", err
	}
	var bonus int64
	if acct.ReferrerID != nil && u.referralPct > 0 {
		bonus = info.Amount * u.referralPct / 100
	}

	rec, err := model.NewPaymentRecord(providerPaymentID, info.AccountID, info.Amount, bonus)
	if err != nil {
		return "", err
	}
	// The record write happens-before any credit so that a crash between
	// the two steps can never lead to a double credit on redelivery.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return u.payments.Create(ctx, tx, rec)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return PaymentAlreadyProcessed, nil
		}
		return "", err
	}

	newBalance, err := u.ledger.Credit(ctx, info.AccountID, info.Amount)
	if err != nil {
		// Record exists but the credit failed; surface for the audit log.
		u.log.Error().Err(err).Str("payment_id", providerPaymentID).Int64("account_id", info.AccountID).Msg("credit after payment record failed")
		return "", err
	}
	metrics.IncPayment("approved")
	metrics.AddPaymentRevenue(info.Amount)
	u.sink.PaymentSettled(ctx, info.AccountID, info.Amount, newBalance)

	if bonus > 0 {
		refBalance, err := u.ledger.Credit(ctx, *acct.ReferrerID, bonus)
		if err != nil {
			u.log.Error().Err(err).Str("payment_id", providerPaymentID).Int64("referrer_id", *acct.ReferrerID).Msg("referral bonus credit failed")
		} else {
			u.sink.ReferralBonusPaid(ctx, *acct.ReferrerID, bonus, refBalance)
		}
	}

	u.log.Info().Str("payment_id", providerPaymentID).Int64("account_id", info.AccountID).Int64("amount", info.Amount).Int64("bonus", bonus).Msg("payment credited")
	return PaymentProcessed, nil
}

// accountFor resolves the paying account, creating it if the first thing a
// user ever did was pay. Referrals attach through EnsureAccount, so a
// lazily created account starts without one.
func (u *paymentUC) accountFor(ctx context.Context, accountID int64) (*model.Account, error) {
	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	acct, err = model.NewAccount(accountID, nil)
	if err != nil {
		return nil, err
	}
	if err := u.accounts.Save(ctx, nil, acct); err != nil {
		return nil, err
	}
	return acct, nil
}
