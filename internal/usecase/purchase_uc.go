// File: internal/usecase/purchase_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
	"telegram-sms-market/internal/domain/ports/repository"
	"telegram-sms-market/internal/infra/metrics"
)

var _ PurchaseUseCase = (*purchaseUC)(nil)

// RateLimiter throttles purchase attempts per account.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PurchaseConfig carries acquisition retry policy and referral-free knobs
// of the purchase path. Rules are keyed by provider name.
type PurchaseConfig struct {
	AcquireAttempts int   // bounded retries against transient failures
	PriceStep       int64 // ceiling raise per retry, centavos
	RateLimit       int   // purchases per account per window; 0 disables
	RateWindow      time.Duration
	Rules           map[string]model.SelectionRule
}

func (c *PurchaseConfig) normalize() {
	if c.AcquireAttempts <= 0 {
		c.AcquireAttempts = 3
	}
	if c.PriceStep < 0 {
		c.PriceStep = 0
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
}

// PurchaseUseCase is the entry point of the purchase flow: price discovery,
// number acquisition, atomic debit+record, lifecycle arming.
type PurchaseUseCase interface {
	Purchase(ctx context.Context, accountID int64, serviceKey string) (*model.Activation, error)
}

type purchaseUC struct {
	registry  adapter.ProviderRegistry
	accounts  repository.AccountRepository
	pricing   PricingUseCase
	ledger    LedgerUseCase
	lifecycle LifecycleManager
	sink      adapter.NotificationSink
	limiter   RateLimiter
	cfg       PurchaseConfig
	log       *zerolog.Logger
}

func NewPurchaseUseCase(registry adapter.ProviderRegistry, accounts repository.AccountRepository, pricing PricingUseCase, ledger LedgerUseCase, lifecycle LifecycleManager, sink adapter.NotificationSink, limiter RateLimiter, cfg PurchaseConfig, logger *zerolog.Logger) *purchaseUC {
	cfg.normalize()
	l := logger.With().Str("component", "PurchaseUC").Logger()
	return &purchaseUC{
		registry:  registry,
		accounts:  accounts,
		pricing:   pricing,
		ledger:    ledger,
		lifecycle: lifecycle,
		sink:      sink,
		limiter:   limiter,
		cfg:       cfg,
		log:       &l,
	}
}

func (u *purchaseUC) Purchase(ctx context.Context, accountID int64, serviceKey string) (*model.Activation, error) {
	if u.limiter != nil && u.cfg.RateLimit > 0 {
		ok, err := u.limiter.Allow(ctx, fmt.Sprintf("purchase:%d", accountID), u.cfg.RateLimit, u.cfg.RateWindow)
		if err != nil {
			u.log.Warn().Err(err).Msg("rate limiter unavailable, allowing purchase")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	prov, ok := u.registry.ForService(serviceKey)
	if !ok {
		return nil, domain.ErrUnsupportedService
	}
	rule := u.cfg.Rules[prov.Name()]

	country := providerCountry(prov)
	price, acceptable, err := u.pricing.AcceptablePrice(ctx, prov, serviceKey, country, rule)
	if err != nil {
		return nil, err
	}
	if !acceptable {
		return nil, domain.ErrNoNumbers
	}

	// Cheap pre-check before touching the provider; the authoritative
	// check happens inside the debit transaction.
	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Balance < price {
		return nil, domain.ErrInsufficientFunds
	}

	order, err := u.acquire(ctx, prov, serviceKey, country, price)
	if err != nil {
		return nil, err
	}

	act, err := model.NewActivation(order.ActivationID, accountID, prov.Name(), serviceKey, country, order.FullNumber, price)
	if err != nil {
		return nil, err
	}
	if err := u.ledger.DebitForPurchase(ctx, act); err != nil {
		// Funds raced away or duplicate id: release the number, best-effort.
		if cerr := prov.Cancel(ctx, order.ActivationID); cerr != nil {
			u.log.Warn().Err(cerr).Str("activation_id", order.ActivationID).Msg("release of undebited number failed")
		}
		return nil, err
	}

	metrics.IncPurchase(prov.Name(), serviceKey)
	u.lifecycle.Start(act)
	u.sink.ActivationUpdated(ctx, act)
	u.log.Info().Str("activation_id", act.ID).Int64("account_id", accountID).Str("service", serviceKey).Int64("price", price).Msg("number purchased")
	return act, nil
}

// acquire retries transient failures a bounded number of times, raising the
// price ceiling on each attempt. ErrNoNumbers from the provider is final
// only after the last attempt; a slightly higher ceiling often frees stock.
func (u *purchaseUC) acquire(ctx context.Context, prov adapter.SMSProvider, serviceKey, country string, price int64) (*adapter.NumberOrder, error) {
	ceiling := price
	var lastErr error
	for attempt := 0; attempt < u.cfg.AcquireAttempts; attempt++ {
		order, err := prov.AcquireNumber(ctx, serviceKey, country, ceiling)
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrNoNumbers) {
			u.log.Debug().Err(err).Str("provider", prov.Name()).Int("attempt", attempt+1).Msg("acquire failed, retrying")
		}
		ceiling += u.cfg.PriceStep
	}
	if errors.Is(lastErr, domain.ErrNoNumbers) {
		return nil, domain.ErrNoNumbers
	}
	return nil, fmt.Errorf("acquire number from %s: %w", prov.Name(), lastErr)
}

// providerCountry lets adapters expose their configured country without
// widening the port for every caller.
func providerCountry(prov adapter.SMSProvider) string {
	type countryProvider interface{ Country() string }
	if cp, ok := prov.(countryProvider); ok {
		return cp.Country()
	}
	return ""
}
