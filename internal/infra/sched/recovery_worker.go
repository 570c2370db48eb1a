// File: internal/infra/sched/recovery_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain/ports/repository"
	"telegram-sms-market/internal/usecase"
)

// RecoveryWorker re-attaches poll loops to activations that are still open
// in the database, covering restarts and crashes mid-activation. Start is
// idempotent on the lifecycle side, so rescanning an already-watched
// activation is a no-op.
type RecoveryWorker struct {
	activations repository.ActivationRepository
	lifecycle   usecase.LifecycleManager
	interval    time.Duration
	log         *zerolog.Logger
}

func NewRecoveryWorker(activations repository.ActivationRepository, lifecycle usecase.LifecycleManager, interval time.Duration, logger *zerolog.Logger) *RecoveryWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l := logger.With().Str("component", "RecoveryWorker").Logger()
	return &RecoveryWorker{activations: activations, lifecycle: lifecycle, interval: interval, log: &l}
}

func (w *RecoveryWorker) Start(ctx context.Context) {
	// Immediate pass so a restart picks up orphans right away.
	w.tick(ctx)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *RecoveryWorker) tick(ctx context.Context) {
	open, err := w.activations.ListOpen(ctx, nil, 500)
	if err != nil {
		w.log.Error().Err(err).Msg("list open activations failed")
		return
	}
	for _, a := range open {
		w.lifecycle.Start(a)
	}
	if len(open) > 0 {
		w.log.Info().Int("count", len(open)).Msg("re-attached open activations")
	}
}
