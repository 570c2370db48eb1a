package adapter

import (
	"context"

	"telegram-sms-market/internal/domain/model"
)

type NumberState string

const (
	NumberWaiting   NumberState = "waiting"
	NumberDelivered NumberState = "delivered"
	NumberCancelled NumberState = "cancelled"
	NumberUnknown   NumberState = "unknown"
)

// NumberOrder is the result of acquiring a number from a provider.
type NumberOrder struct {
	ActivationID string
	FullNumber   string
}

// StatusResult is one non-blocking status poll. Code is set only when
// State is NumberDelivered.
type StatusResult struct {
	State NumberState
	Code  string
}

// SMSProvider is the hex port for number-resale providers. Unavailability
// is signalled as domain.ErrNoNumbers, distinct from transport errors which
// come back wrapped; the caller decides the retry policy.
type SMSProvider interface {
	Name() string
	// Services lists the service keys this provider is configured to sell.
	Services() []string
	AcquireNumber(ctx context.Context, serviceKey, country string, maxPrice int64) (*NumberOrder, error)
	GetStatus(ctx context.Context, activationID string) (StatusResult, error)
	// Cancel is best-effort; local settlement never waits on it.
	Cancel(ctx context.Context, activationID string) error
	// RequestAnother asks the provider for one more code on the same number.
	RequestAnother(ctx context.Context, activationID string) error
	Prices(ctx context.Context, serviceKey, country string) ([]model.PriceTier, error)
}

// ProviderRegistry resolves the provider selling a given service key.
// Resolved once at configuration time, never via string keys at call sites.
type ProviderRegistry interface {
	ForService(serviceKey string) (SMSProvider, bool)
}
