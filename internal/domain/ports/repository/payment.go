package repository

import (
	"context"

	"telegram-sms-market/internal/domain/model"
)

// PaymentRepository stores processed-payment records. Records are insert
// only; the unique provider payment id is the idempotency key for the
// whole reconciliation path.
type PaymentRepository interface {
	// Create inserts the record; domain.ErrAlreadyExists when the provider
	// payment id was processed before.
	Create(ctx context.Context, tx Tx, p *model.PaymentRecord) error
	FindByProviderPaymentID(ctx context.Context, tx Tx, providerPaymentID string) (*model.PaymentRecord, error)
}
