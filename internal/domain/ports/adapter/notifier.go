package adapter

import (
	"context"

	"telegram-sms-market/internal/domain/model"
)

// NotificationSink is the messaging front-end seen from the core. Calls
// must not block business flows; implementations and callers are expected
// to dispatch asynchronously, and delivery failures are logged, not
// propagated.
type NotificationSink interface {
	ActivationUpdated(ctx context.Context, a *model.Activation)
	PaymentSettled(ctx context.Context, accountID int64, amount, newBalance int64)
	ReferralBonusPaid(ctx context.Context, accountID int64, bonus, newBalance int64)
}
