// File: internal/infra/worker/async_sink.go
package worker

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*AsyncSink)(nil)

// AsyncSink dispatches notifications through the pool so the purchase and
// settlement paths never wait on Telegram. The task carries the pool's
// lifecycle context, not the caller's, since the triggering request may
// finish before the message goes out.
type AsyncSink struct {
	pool *Pool
	next adapter.NotificationSink
	log  *zerolog.Logger
}

func NewAsyncSink(pool *Pool, next adapter.NotificationSink, logger *zerolog.Logger) *AsyncSink {
	l := logger.With().Str("component", "AsyncSink").Logger()
	return &AsyncSink{pool: pool, next: next, log: &l}
}

func (s *AsyncSink) ActivationUpdated(ctx context.Context, a *model.Activation) {
	snapshot := *a
	snapshot.Codes = append([]string(nil), a.Codes...)
	s.submit(func(ctx context.Context) error {
		s.next.ActivationUpdated(ctx, &snapshot)
		return nil
	})
}

func (s *AsyncSink) PaymentSettled(ctx context.Context, accountID int64, amount, newBalance int64) {
	s.submit(func(ctx context.Context) error {
		s.next.PaymentSettled(ctx, accountID, amount, newBalance)
		return nil
	})
}

func (s *AsyncSink) ReferralBonusPaid(ctx context.Context, accountID int64, bonus, newBalance int64) {
	s.submit(func(ctx context.Context) error {
		s.next.ReferralBonusPaid(ctx, accountID, bonus, newBalance)
		return nil
	})
}

func (s *AsyncSink) submit(task Task) {
	if err := s.pool.Submit(task); err != nil {
		s.log.Warn().Err(err).Msg("notification dropped")
	}
}
