// File: internal/infra/providers/smsbower.go
package providers

import (
	"context"
	"net/url"

	"telegram-sms-market/internal/config"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ adapter.SMSProvider = (*SMSBower)(nil)

// SMSBower is the primary number vendor. It honours the maxPrice query
// parameter on getNumber, so the acquisition ceiling is enforced
// vendor-side.
type SMSBower struct {
	api      *apiClient
	country  string
	services []string
}

func NewSMSBower(cfg config.ProviderConfig) *SMSBower {
	return &SMSBower{
		api:      newAPIClient(cfg.Name, cfg.BaseURL, cfg.APIKey),
		country:  cfg.Country,
		services: append([]string(nil), cfg.Services...),
	}
}

func (p *SMSBower) Name() string { return p.api.name }

func (p *SMSBower) Country() string { return p.country }

func (p *SMSBower) Services() []string { return append([]string(nil), p.services...) }

func (p *SMSBower) AcquireNumber(ctx context.Context, serviceKey, country string, maxPrice int64) (*adapter.NumberOrder, error) {
	params := url.Values{}
	params.Set("service", serviceKey)
	params.Set("country", p.resolveCountry(country))
	if maxPrice > 0 {
		params.Set("maxPrice", centavosToPrice(maxPrice))
	}
	body, err := p.api.call(ctx, "getNumber", params)
	if err != nil {
		return nil, err
	}
	return parseAccessNumber(body)
}

func (p *SMSBower) GetStatus(ctx context.Context, activationID string) (adapter.StatusResult, error) {
	params := url.Values{}
	params.Set("id", activationID)
	body, err := p.api.call(ctx, "getStatus", params)
	if err != nil {
		return adapter.StatusResult{State: adapter.NumberUnknown}, err
	}
	return parseStatus(body)
}

func (p *SMSBower) Cancel(ctx context.Context, activationID string) error {
	return p.setStatus(ctx, activationID, "8")
}

func (p *SMSBower) RequestAnother(ctx context.Context, activationID string) error {
	return p.setStatus(ctx, activationID, "3")
}

func (p *SMSBower) setStatus(ctx context.Context, activationID, status string) error {
	params := url.Values{}
	params.Set("id", activationID)
	params.Set("status", status)
	_, err := p.api.call(ctx, "setStatus", params)
	return err
}

func (p *SMSBower) Prices(ctx context.Context, serviceKey, country string) ([]model.PriceTier, error) {
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

func (p *SMSBower) resolveCountry(country string) string {
	if country != "" {
		return country
	}
	return p.country
}
