// File: internal/usecase/lifecycle_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
	"telegram-sms-market/internal/domain/ports/repository"
	"telegram-sms-market/internal/infra/metrics"
)

var _ LifecycleManager = (*lifecycleUC)(nil)

// LifecycleConfig carries the per-activation timing knobs.
type LifecycleConfig struct {
	PollInterval time.Duration // status poll cadence
	Timeout      time.Duration // fixed deadline from activation creation
	CancelGrace  time.Duration // user cancel rejected before this elapses
}

func (c *LifecycleConfig) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 23 * time.Minute
	}
	if c.CancelGrace <= 0 {
		// Grace defaults to the first two polling intervals so a number the
		// provider has not finished allocating cannot be cancelled.
		c.CancelGrace = 2 * c.PollInterval
	}
}

// LifecycleManager drives each activation from creation to its terminal
// state. Every open activation gets one poll loop and one timeout watchdog
// goroutine sharing a per-activation context; the ledger settle
// compare-and-set is the only serialization point between them.
type LifecycleManager interface {
	// Run blocks until ctx is cancelled, then stops all activation workers.
	Run(ctx context.Context) error
	// Start arms the poll loop and watchdog for an activation. Idempotent
	// per activation id.
	Start(a *model.Activation)
	// Cancel handles an explicit user cancellation. Only permitted after
	// the grace window, while no code was delivered and the activation is
	// not finished.
	Cancel(ctx context.Context, activationID string, accountID int64) error
	// RequestAnotherCode re-arms delivery for one more code on the same
	// number, without re-debiting or extending the deadline.
	RequestAnotherCode(ctx context.Context, activationID string, accountID int64) error
}

type lifecycleUC struct {
	registry    adapter.ProviderRegistry
	activations repository.ActivationRepository
	ledger      LedgerUseCase
	sink        adapter.NotificationSink
	cfg         LifecycleConfig
	log         *zerolog.Logger

	mu      sync.Mutex
	rootCtx context.Context
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewLifecycleManager(registry adapter.ProviderRegistry, activations repository.ActivationRepository, ledger LedgerUseCase, sink adapter.NotificationSink, cfg LifecycleConfig, logger *zerolog.Logger) *lifecycleUC {
	cfg.normalize()
	l := logger.With().Str("component", "LifecycleManager").Logger()
	return &lifecycleUC{
		registry:    registry,
		activations: activations,
		ledger:      ledger,
		sink:        sink,
		cfg:         cfg,
		log:         &l,
		running:     make(map[string]context.CancelFunc),
	}
}

func (m *lifecycleUC) Run(ctx context.Context) error {
	m.mu.Lock()
	m.rootCtx = ctx
	m.mu.Unlock()

	<-ctx.Done()
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return ctx.Err()
}

func (m *lifecycleUC) Start(a *model.Activation) {
	if a == nil || a.Finished() {
		return
	}
	prov, ok := m.registry.ForService(a.ServiceKey)
	if !ok {
		m.log.Error().Str("activation_id", a.ID).Str("service", a.ServiceKey).Msg("no provider for open activation")
		return
	}

	m.mu.Lock()
	if _, exists := m.running[a.ID]; exists {
		m.mu.Unlock()
		return
	}
	base := m.rootCtx
	if base == nil {
		base = context.Background()
	}
	actCtx, cancel := context.WithCancel(base)
	m.running[a.ID] = cancel
	m.wg.Add(2)
	m.mu.Unlock()

	go m.pollLoop(actCtx, prov, a)
	go m.watchdog(actCtx, prov, a)
	m.log.Info().Str("activation_id", a.ID).Str("provider", prov.Name()).Time("deadline", a.Deadline(m.cfg.Timeout)).Msg("lifecycle armed")
}

func (m *lifecycleUC) stop(activationID string) {
	m.mu.Lock()
	if cancel, ok := m.running[activationID]; ok {
		delete(m.running, activationID)
		cancel()
	}
	m.mu.Unlock()
}

// pollLoop polls the provider until a terminal transition, the deadline or
// a context cancel. Transient provider errors are swallowed and retried on
// the next tick; they never trigger settlement.
func (m *lifecycleUC) pollLoop(ctx context.Context, prov adapter.SMSProvider, a *model.Activation) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	deadline := a.Deadline(m.cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Now().After(deadline) {
			return // the watchdog owns finalization
		}

		st, err := prov.GetStatus(ctx, a.ID)
		if err != nil {
			m.log.Debug().Err(err).Str("activation_id", a.ID).Msg("status poll failed, will retry")
			continue
		}
		switch st.State {
		case adapter.NumberDelivered:
			m.onDelivered(ctx, a, st.Code)
		case adapter.NumberCancelled:
			m.onProviderCancelled(ctx, a)
			m.stop(a.ID)
			return
		default:
			// waiting / unknown: next tick
		}
	}
}

func (m *lifecycleUC) onDelivered(ctx context.Context, a *model.Activation, code string) {
	if code == "" {
		return
	}
	added, err := m.activations.AppendCode(ctx, nil, a.ID, code)
	if err != nil {
		m.log.Error().Err(err).Str("activation_id", a.ID).Msg("append code failed")
		return
	}
	if !added {
		return // duplicate delivery of the same code
	}
	metrics.IncCodeDelivered(a.Provider)
	m.log.Info().Str("activation_id", a.ID).Msg("sms code delivered")
	m.notify(ctx, a.ID)
	// The activation stays open: the owner may request another code.
}

func (m *lifecycleUC) onProviderCancelled(ctx context.Context, a *model.Activation) {
	cur, err := m.activations.FindByID(ctx, nil, a.ID)
	if err != nil {
		m.log.Error().Err(err).Str("activation_id", a.ID).Msg("fetch on provider cancel failed")
		return
	}
	if len(cur.Codes) == 0 {
		refunded, err := m.ledger.SettleAndRefund(ctx, a.ID, a.AccountID, a.Price, model.OutcomeProviderCancelled)
		if err != nil || !refunded {
			return
		}
	} else {
		// Partially served: no refund.
		if _, err := m.ledger.FinalizeDelivered(ctx, a.ID); err != nil {
			return
		}
	}
	m.notify(ctx, a.ID)
}

// watchdog sleeps until the fixed deadline and force-expires the
// activation if no code arrived. The settle compare-and-set makes it a
// no-op when the user-cancel path won the race.
func (m *lifecycleUC) watchdog(ctx context.Context, prov adapter.SMSProvider, a *model.Activation) {
	defer m.wg.Done()
	timer := time.NewTimer(time.Until(a.Deadline(m.cfg.Timeout)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	defer m.stop(a.ID)

	cur, err := m.activations.FindByID(ctx, nil, a.ID)
	if err != nil {
		m.log.Error().Err(err).Str("activation_id", a.ID).Msg("watchdog fetch failed")
		return
	}
	if cur.Finished() {
		return
	}
	if len(cur.Codes) > 0 {
		if _, err := m.ledger.FinalizeDelivered(ctx, a.ID); err == nil {
			m.notify(ctx, a.ID)
		}
		return
	}

	// Best-effort provider cancel; the local settlement is authoritative.
	if err := prov.Cancel(ctx, a.ID); err != nil {
		m.log.Warn().Err(err).Str("activation_id", a.ID).Msg("provider cancel at deadline failed")
	}
	outcome := model.OutcomeTimedOut
	if cur.CancelRequested {
		// A user cancel claimed the activation but has not settled yet; keep
		// its label so the cancel path can report success.
		outcome = model.OutcomeUserCancelled
	}
	refunded, err := m.ledger.SettleAndRefund(ctx, a.ID, a.AccountID, a.Price, outcome)
	if err != nil {
		return
	}
	if refunded {
		m.log.Info().Str("activation_id", a.ID).Str("outcome", string(outcome)).Msg("activation expired, refunded")
		m.notify(ctx, a.ID)
	}
}

func (m *lifecycleUC) Cancel(ctx context.Context, activationID string, accountID int64) error {
	a, err := m.activations.FindByID(ctx, nil, activationID)
	if err != nil {
		return err
	}
	if a.AccountID != accountID {
		return domain.ErrNotFound
	}
	if a.Finished() {
		return domain.ErrActivationFinished
	}
	if len(a.Codes) > 0 {
		return domain.ErrCodesDelivered
	}
	if time.Since(a.CreatedAt) < m.cfg.CancelGrace {
		return domain.ErrCancelTooEarly
	}

	flipped, err := m.activations.MarkCancelRequested(ctx, nil, activationID)
	if err != nil {
		return err
	}
	if !flipped {
		// Lost the race: either a code landed or settlement happened.
		cur, ferr := m.activations.FindByID(ctx, nil, activationID)
		if ferr == nil && len(cur.Codes) > 0 {
			return domain.ErrCodesDelivered
		}
		return domain.ErrActivationFinished
	}

	if prov, ok := m.registry.ForService(a.ServiceKey); ok {
		if cerr := prov.Cancel(ctx, activationID); cerr != nil {
			m.log.Warn().Err(cerr).Str("activation_id", activationID).Msg("provider cancel failed, refunding anyway")
		}
	}
	refunded, err := m.ledger.SettleAndRefund(ctx, activationID, a.AccountID, a.Price, model.OutcomeUserCancelled)
	if err != nil {
		return err
	}
	m.stop(activationID)
	if !refunded {
		// The watchdog settled first. It honours the cancel-requested flag,
		// so a user_cancelled outcome means this cancel's refund happened.
		if cur, ferr := m.activations.FindByID(ctx, nil, activationID); ferr == nil && cur.Outcome == model.OutcomeUserCancelled {
			return nil
		}
		return domain.ErrActivationFinished
	}
	m.log.Info().Str("activation_id", activationID).Int64("account_id", accountID).Msg("cancelled by user, refunded")
	m.notify(ctx, activationID)
	return nil
}

func (m *lifecycleUC) RequestAnotherCode(ctx context.Context, activationID string, accountID int64) error {
	a, err := m.activations.FindByID(ctx, nil, activationID)
	if err != nil {
		return err
	}
	if a.AccountID != accountID {
		return domain.ErrNotFound
	}
	if a.Finished() || time.Now().After(a.Deadline(m.cfg.Timeout)) {
		return domain.ErrActivationFinished
	}
	if len(a.Codes) == 0 {
		// Nothing was delivered yet; the first poll loop is still working.
		return domain.ErrInvalidArgument
	}
	prov, ok := m.registry.ForService(a.ServiceKey)
	if !ok {
		return domain.ErrUnsupportedService
	}
	if err := prov.RequestAnother(ctx, activationID); err != nil {
		return fmt.Errorf("request another code: %w", err)
	}
	// Re-arm polling on the same activation; deadline is unchanged.
	m.Start(a)
	m.log.Info().Str("activation_id", activationID).Msg("another code requested")
	return nil
}

// notify pushes the current activation state to the front-end. The sink is
// fire-and-forget; a failed fetch just skips the notification.
func (m *lifecycleUC) notify(ctx context.Context, activationID string) {
	cur, err := m.activations.FindByID(ctx, nil, activationID)
	if err != nil {
		m.log.Debug().Err(err).Str("activation_id", activationID).Msg("skip notification, fetch failed")
		return
	}
	m.sink.ActivationUpdated(ctx, cur)
}

// IsExpectedCancelError reports whether err is one of the normal business
// outcomes of a cancel attempt (as opposed to a storage or provider fault).
func IsExpectedCancelError(err error) bool {
	return errors.Is(err, domain.ErrCancelTooEarly) ||
		errors.Is(err, domain.ErrCodesDelivered) ||
		errors.Is(err, domain.ErrActivationFinished)
}
