// File: internal/infra/providers/smslive.go
package providers

import (
	"context"
	"net/url"

	"telegram-sms-market/internal/config"
	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ adapter.SMSProvider = (*SMSLive)(nil)

// SMSLive speaks the same text protocol as SMSBower but its getNumber
// endpoint ignores maxPrice, so the ceiling is enforced here with a price
// check before each acquisition.
type SMSLive struct {
	api      *apiClient
	country  string
	services []string
}

func NewSMSLive(cfg config.ProviderConfig) *SMSLive {
	return &SMSLive{
		api:      newAPIClient(cfg.Name, cfg.BaseURL, cfg.APIKey),
		country:  cfg.Country,
		services: append([]string(nil), cfg.Services...),
	}
}

func (p *SMSLive) Name() string { return p.api.name }

func (p *SMSLive) Country() string { return p.country }

func (p *SMSLive) Services() []string { return append([]string(nil), p.services...) }

func (p *SMSLive) AcquireNumber(ctx context.Context, serviceKey, country string, maxPrice int64) (*adapter.NumberOrder, error) {
	if maxPrice > 0 {
		tiers, err := p.Prices(ctx, serviceKey, country)
		if err != nil {
			return nil, err
		}
		if !anyTierAtOrBelow(tiers, maxPrice) {
			return nil, domain.ErrNoNumbers
		}
	}
	params := url.Values{}
	params.Set("service", serviceKey)
	params.Set("country", p.resolveCountry(country))
	body, err := p.api.call(ctx, "getNumber", params)
	if err != nil {
		return nil, err
	}
	return parseAccessNumber(body)
}

func anyTierAtOrBelow(tiers []model.PriceTier, maxPrice int64) bool {
	for _, t := range tiers {
		if t.Price <= maxPrice && t.Available > 0 {
			return true
		}
	}
	return false
}

func (p *SMSLive) GetStatus(ctx context.Context, activationID string) (adapter.StatusResult, error) {
	params := url.Values{}
	params.Set("id", activationID)
	body, err := p.api.call(ctx, "getStatus", params)
	if err != nil {
		return adapter.StatusResult{State: adapter.NumberUnknown}, err
	}
	return parseStatus(body)
}

func (p *SMSLive) Cancel(ctx context.Context, activationID string) error {
	return p.setStatus(ctx, activationID, "8")
}

func (p *SMSLive) RequestAnother(ctx context.Context, activationID string) error {
	return p.setStatus(ctx, activationID, "3")
}

func (p *SMSLive) setStatus(ctx context.Context, activationID, status string) error {
	params := url.Values{}
	params.Set("id", activationID)
	params.Set("status", status)
	_, err := p.api.call(ctx, "setStatus", params)
	return err
}

func (p *SMSLive) Prices(ctx context.Context, serviceKey, country string) ([]model.PriceTier, error) {
	country = p.resolveCountry(country)
	params := url.Values{}
	params.Set("service", serviceKey)
	params.Set("country", country)
	body, err := p.api.call(ctx, "getPrices", params)
	if err != nil {
		return nil, err
	}
	return parsePrices(body, country, serviceKey)
}

func (p *SMSLive) resolveCountry(country string) string {
	if country != "" {
		return country
	}
	return p.country
}
