// File: internal/usecase/pricing_uc.go
package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ PricingUseCase = (*pricingUC)(nil)

// PricingUseCase selects an acceptable price tier before a number is
// requested from a provider.
type PricingUseCase interface {
	// AcceptablePrice fetches the provider's price table and applies the
	// rule. ok=false means no tier is acceptable (a normal outcome).
	AcceptablePrice(ctx context.Context, prov adapter.SMSProvider, serviceKey, country string, rule model.SelectionRule) (price int64, ok bool, err error)
}

type pricingUC struct {
	log *zerolog.Logger
}

func NewPricingUseCase(logger *zerolog.Logger) *pricingUC {
	l := logger.With().Str("component", "PricingUC").Logger()
	return &pricingUC{log: &l}
}

func (u *pricingUC) AcceptablePrice(ctx context.Context, prov adapter.SMSProvider, serviceKey, country string, rule model.SelectionRule) (int64, bool, error) {
	tiers, err := prov.Prices(ctx, serviceKey, country)
	if err != nil {
		return 0, false, fmt.Errorf("fetch prices from %s: %w", prov.Name(), err)
	}
	price, ok := SelectTier(tiers, rule)
	if !ok {
		u.log.Debug().Str("provider", prov.Name()).Str("service", serviceKey).Int("tiers", len(tiers)).Msg("no acceptable price tier")
	}
	return price, ok, nil
}

// SelectTier applies a selection rule to a price table.
//
// cheapest: lowest price <= PriceCap with more than MinAvailable numbers.
// nearest_from_above: highest price <= SecondaryCap with more than
// StrictMinAvailable numbers, preferring an expensive tier that is actually
// in stock over a cheap tier that keeps selling out.
func SelectTier(tiers []model.PriceTier, rule model.SelectionRule) (int64, bool) {
	if len(tiers) == 0 {
		return 0, false
	}
	sorted := make([]model.PriceTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	switch rule.Strategy {
	case model.SelectNearestFromAbove:
		capLimit := rule.SecondaryCap
		if capLimit <= 0 {
			capLimit = rule.PriceCap
		}
		threshold := rule.StrictMinAvailable
		if threshold <= 0 {
			threshold = rule.MinAvailable
		}
		for i := len(sorted) - 1; i >= 0; i-- {
			t := sorted[i]
			if t.Price <= capLimit && t.Available > threshold {
				return t.Price, true
			}
		}
	default: // model.SelectCheapest
		for _, t := range sorted {
			if t.Price > rule.PriceCap {
				break
			}
			if t.Available > rule.MinAvailable {
				return t.Price, true
			}
		}
	}
	return 0, false
}
