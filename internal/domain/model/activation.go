package model

import (
	"strings"
	"time"

	"telegram-sms-market/internal/domain"
)

// Outcome is the terminal result of an activation. At most one outcome is
// ever recorded; it is set by the same compare-and-set that flips Settled.
type Outcome string

const (
	OutcomeDelivered         Outcome = "delivered"
	OutcomeUserCancelled     Outcome = "user_cancelled"
	OutcomeProviderCancelled Outcome = "provider_cancelled"
	OutcomeTimedOut          Outcome = "timed_out"
)

// Activation is one purchased, provider-issued phone number together with
// its delivery state. Rows are never deleted; a finished activation is kept
// for audit and duplicate-refund prevention.
type Activation struct {
	ID          string // provider-assigned
	AccountID   int64
	Provider    string
	ServiceKey  string
	Country     string
	Price       int64 // centavos charged at purchase
	FullNumber  string
	LocalNumber string
	// Codes is append-only with duplicates suppressed by the repository.
	Codes           []string
	CancelRequested bool
	Settled         bool
	Outcome         Outcome // empty until settled
	CreatedAt       time.Time
}

func NewActivation(id string, accountID int64, provider, serviceKey, country, fullNumber string, price int64) (*Activation, error) {
	if id == "" || provider == "" || serviceKey == "" || fullNumber == "" {
		return nil, domain.ErrInvalidArgument
	}
	if accountID <= 0 || price <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Activation{
		ID:          id,
		AccountID:   accountID,
		Provider:    provider,
		ServiceKey:  serviceKey,
		Country:     country,
		Price:       price,
		FullNumber:  fullNumber,
		LocalNumber: LocalNumber(fullNumber, "55"),
		CreatedAt:   time.Now(),
	}, nil
}

func (a *Activation) Finished() bool { return a.Settled || a.Outcome != "" }

// Deadline is fixed from creation time; retry-for-another-code never
// extends it.
func (a *Activation) Deadline(timeout time.Duration) time.Time {
	return a.CreatedAt.Add(timeout)
}

func (a *Activation) HasCode(code string) bool {
	for _, c := range a.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// LocalNumber strips the international dialing prefix so the user can paste
// the number into apps that expect the national form.
func LocalNumber(full, ddi string) string {
	n := strings.TrimPrefix(full, "+")
	if ddi != "" && strings.HasPrefix(n, ddi) && len(n) > len(ddi) {
		return n[len(ddi):]
	}
	return n
}
