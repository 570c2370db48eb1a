package adapter

import (
	"context"

	"telegram-sms-market/internal/domain/model"
)

// ChargeInfo is the authoritative view of one payment, fetched from the
// gateway by id. Webhook payloads are never trusted for amount or status.
type ChargeInfo struct {
	ID        string
	Status    model.PaymentStatus
	Amount    int64 // centavos
	AccountID int64 // from the external reference we set at charge creation
}

// PaymentGateway is the hex port for the payment provider.
type PaymentGateway interface {
	Name() string
	// CreateCharge opens a charge for a balance top-up and returns the
	// gateway charge id and the URL the user pays at.
	CreateCharge(ctx context.Context, accountID int64, amount int64, description string) (chargeID, payURL string, err error)
	// FetchPayment returns the gateway's view of a payment by id.
	FetchPayment(ctx context.Context, paymentID string) (*ChargeInfo, error)
}
