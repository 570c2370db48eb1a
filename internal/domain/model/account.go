package model

import (
	"time"

	"telegram-sms-market/internal/domain"
)

// Account is a domain entity representing a Telegram user's balance holder.
// Balance is stored in minor currency units (centavos) and is only ever
// mutated through the ledger's atomic repository operations.
type Account struct {
	TelegramID int64
	Balance    int64 // centavos
	ReferrerID *int64
	CreatedAt  time.Time
	LastSeenAt time.Time
}

func NewAccount(tgID int64, referrerID *int64) (*Account, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	// An account never refers itself.
	if referrerID != nil && *referrerID == tgID {
		referrerID = nil
	}
	now := time.Now()
	return &Account{
		TelegramID: tgID,
		ReferrerID: referrerID,
		CreatedAt:  now,
		LastSeenAt: now,
	}, nil
}

func (a *Account) IsZero() bool { return a == nil || a.TelegramID == 0 }
func (a *Account) Touch()       { a.LastSeenAt = time.Now() }
