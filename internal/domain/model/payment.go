package model

import (
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-sms-market/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// PaymentRecord marks one external payment as processed. It is written
// exactly once, before any balance credit, so webhook redeliveries and
// process restarts can never credit the same payment twice.
type PaymentRecord struct {
	ID                string // ULID, time-sortable for audit
	ProviderPaymentID string // gateway payment id, unique
	AccountID         int64
	Amount            int64 // centavos
	Status            PaymentStatus
	ReferralBonus     int64 // centavos credited to the referrer, 0 if none
	CreatedAt         time.Time
}

func NewPaymentRecord(providerPaymentID string, accountID, amount int64, bonus int64) (*PaymentRecord, error) {
	if providerPaymentID == "" || accountID <= 0 || amount <= 0 || bonus < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PaymentRecord{
		ID:                ulid.Make().String(),
		ProviderPaymentID: providerPaymentID,
		AccountID:         accountID,
		Amount:            amount,
		Status:            PaymentStatusApproved,
		ReferralBonus:     bonus,
		CreatedAt:         time.Now(),
	}, nil
}
