// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
	"telegram-sms-market/internal/domain/ports/repository"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// ---- accounts ----

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[int64]*model.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: make(map[int64]*model.Account)}
}

func (r *memAccountRepo) seed(id int64, balance int64, referrerID *int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.accounts[id] = &model.Account{TelegramID: id, Balance: balance, ReferrerID: referrerID, CreatedAt: now, LastSeenAt: now}
}

func (r *memAccountRepo) balance(id int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		return a.Balance
	}
	return -1
}

func (r *memAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.accounts[a.TelegramID] = &cp
	return nil
}

func (r *memAccountRepo) FindByID(ctx context.Context, tx repository.Tx, telegramID int64) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[telegramID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) DebitIfSufficient(ctx context.Context, tx repository.Tx, telegramID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[telegramID]
	if !ok || a.Balance < amount {
		return false, nil
	}
	a.Balance -= amount
	return true, nil
}

func (r *memAccountRepo) Credit(ctx context.Context, tx repository.Tx, telegramID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[telegramID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	a.Balance += amount
	return a.Balance, nil
}

func (r *memAccountRepo) SetReferrer(ctx context.Context, tx repository.Tx, telegramID, referrerID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[telegramID]
	if !ok || a.ReferrerID != nil || telegramID == referrerID {
		return false, nil
	}
	a.ReferrerID = &referrerID
	return true, nil
}

func (r *memAccountRepo) snapshot() map[int64]model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[int64]model.Account, len(r.accounts))
	for k, v := range r.accounts {
		snap[k] = *v
	}
	return snap
}

func (r *memAccountRepo) restore(snap map[int64]model.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make(map[int64]*model.Account, len(snap))
	for k, v := range snap {
		cp := v
		r.accounts[k] = &cp
	}
}

// ---- activations ----

type memActivationRepo struct {
	mu          sync.Mutex
	activations map[string]*model.Activation
}

func newMemActivationRepo() *memActivationRepo {
	return &memActivationRepo{activations: make(map[string]*model.Activation)}
}

func (r *memActivationRepo) get(id string) *model.Activation {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activations[id]
	if !ok {
		return nil
	}
	cp := *a
	cp.Codes = append([]string(nil), a.Codes...)
	return &cp
}

func (r *memActivationRepo) Create(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.activations[a.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *a
	cp.Codes = append([]string(nil), a.Codes...)
	r.activations[a.ID] = &cp
	return nil
}

func (r *memActivationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Activation, error) {
	if a := r.get(id); a != nil {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memActivationRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID int64) ([]*model.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Activation
	for _, a := range r.activations {
		if a.AccountID == accountID {
			cp := *a
			cp.Codes = append([]string(nil), a.Codes...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memActivationRepo) ListOpen(ctx context.Context, tx repository.Tx, limit int) ([]*model.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Activation
	for _, a := range r.activations {
		if !a.Settled {
			cp := *a
			cp.Codes = append([]string(nil), a.Codes...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memActivationRepo) AppendCode(ctx context.Context, tx repository.Tx, id, code string) (bool, error) {
	if code == "" {
		return false, domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activations[id]
	if !ok || a.Settled {
		return false, nil
	}
	for _, c := range a.Codes {
		if c == code {
			return false, nil
		}
	}
	a.Codes = append(a.Codes, code)
	return true, nil
}

func (r *memActivationRepo) MarkCancelRequested(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activations[id]
	if !ok || a.Settled || a.CancelRequested || len(a.Codes) > 0 {
		return false, nil
	}
	a.CancelRequested = true
	return true, nil
}

func (r *memActivationRepo) MarkSettled(ctx context.Context, tx repository.Tx, id string, outcome model.Outcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.activations[id]
	if !ok || a.Settled {
		return false, nil
	}
	a.Settled = true
	a.Outcome = outcome
	return true, nil
}

func (r *memActivationRepo) snapshot() map[string]model.Activation {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]model.Activation, len(r.activations))
	for k, v := range r.activations {
		cp := *v
		cp.Codes = append([]string(nil), v.Codes...)
		snap[k] = cp
	}
	return snap
}

func (r *memActivationRepo) restore(snap map[string]model.Activation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activations = make(map[string]*model.Activation, len(snap))
	for k, v := range snap {
		cp := v
		r.activations[k] = &cp
	}
}

// ---- payments ----

type memPaymentRepo struct {
	mu      sync.Mutex
	records map[string]*model.PaymentRecord // by provider payment id
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{records: make(map[string]*model.PaymentRecord)}
}

func (r *memPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *memPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[p.ProviderPaymentID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *p
	r.records[p.ProviderPaymentID] = &cp
	return nil
}

func (r *memPaymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, providerPaymentID string) (*model.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[providerPaymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) snapshot() map[string]model.PaymentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]model.PaymentRecord, len(r.records))
	for k, v := range r.records {
		snap[k] = *v
	}
	return snap
}

func (r *memPaymentRepo) restore(snap map[string]model.PaymentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*model.PaymentRecord, len(snap))
	for k, v := range snap {
		cp := v
		r.records[k] = &cp
	}
}

// ---- transaction manager ----

// memTxManager serializes transactions with a mutex and restores repo
// snapshots when fn errors, mirroring rollback semantics.
type memTxManager struct {
	mu          sync.Mutex
	accounts    *memAccountRepo
	activations *memActivationRepo
	payments    *memPaymentRepo
}

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		accSnap map[int64]model.Account
		actSnap map[string]model.Activation
		paySnap map[string]model.PaymentRecord
	)
	if m.accounts != nil {
		accSnap = m.accounts.snapshot()
	}
	if m.activations != nil {
		actSnap = m.activations.snapshot()
	}
	if m.payments != nil {
		paySnap = m.payments.snapshot()
	}
	if err := fn(ctx, nil); err != nil {
		if m.accounts != nil {
			m.accounts.restore(accSnap)
		}
		if m.activations != nil {
			m.activations.restore(actSnap)
		}
		if m.payments != nil {
			m.payments.restore(paySnap)
		}
		return err
	}
	return nil
}

// ---- provider + registry ----

type scriptedProvider struct {
	mu        sync.Mutex
	name      string
	services  []string
	tiers     []model.PriceTier
	pricesErr error

	acquireOrders []*adapter.NumberOrder
	acquireErrs   []error
	maxPricesSeen []int64

	statusFn func(id string) (adapter.StatusResult, error)

	cancelled []string
	retried   []string
}

func newScriptedProvider(name string, services ...string) *scriptedProvider {
	return &scriptedProvider{
		name:     name,
		services: services,
		statusFn: func(string) (adapter.StatusResult, error) {
			return adapter.StatusResult{State: adapter.NumberWaiting}, nil
		},
	}
}

func (p *scriptedProvider) Name() string       { return p.name }
func (p *scriptedProvider) Services() []string { return p.services }
func (p *scriptedProvider) Country() string    { return "73" }

func (p *scriptedProvider) queueOrder(id, number string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireOrders = append(p.acquireOrders, &adapter.NumberOrder{ActivationID: id, FullNumber: number})
	p.acquireErrs = append(p.acquireErrs, nil)
}

func (p *scriptedProvider) queueAcquireErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireOrders = append(p.acquireOrders, nil)
	p.acquireErrs = append(p.acquireErrs, err)
}

func (p *scriptedProvider) setStatus(fn func(id string) (adapter.StatusResult, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusFn = fn
}

func (p *scriptedProvider) cancelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancelled)
}

func (p *scriptedProvider) AcquireNumber(ctx context.Context, serviceKey, country string, maxPrice int64) (*adapter.NumberOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxPricesSeen = append(p.maxPricesSeen, maxPrice)
	if len(p.acquireOrders) == 0 {
		return nil, domain.ErrNoNumbers
	}
	order, err := p.acquireOrders[0], p.acquireErrs[0]
	p.acquireOrders = p.acquireOrders[1:]
	p.acquireErrs = p.acquireErrs[1:]
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (p *scriptedProvider) GetStatus(ctx context.Context, activationID string) (adapter.StatusResult, error) {
	p.mu.Lock()
	fn := p.statusFn
	p.mu.Unlock()
	return fn(activationID)
}

func (p *scriptedProvider) Cancel(ctx context.Context, activationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, activationID)
	return nil
}

func (p *scriptedProvider) RequestAnother(ctx context.Context, activationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retried = append(p.retried, activationID)
	return nil
}

func (p *scriptedProvider) Prices(ctx context.Context, serviceKey, country string) ([]model.PriceTier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pricesErr != nil {
		return nil, p.pricesErr
	}
	return append([]model.PriceTier(nil), p.tiers...), nil
}

type mapRegistry map[string]adapter.SMSProvider

func (m mapRegistry) ForService(serviceKey string) (adapter.SMSProvider, bool) {
	p, ok := m[serviceKey]
	return p, ok
}

// ---- payment gateway ----

type scriptedGateway struct {
	mu      sync.Mutex
	charges map[string]*adapter.ChargeInfo
	fetches int
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{charges: make(map[string]*adapter.ChargeInfo)}
}

func (g *scriptedGateway) addPayment(id string, status model.PaymentStatus, amount, accountID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges[id] = &adapter.ChargeInfo{ID: id, Status: status, Amount: amount, AccountID: accountID}
}

func (g *scriptedGateway) Name() string { return "scripted" }

func (g *scriptedGateway) CreateCharge(ctx context.Context, accountID int64, amount int64, description string) (string, string, error) {
	return "charge-1", "https://pay.example/charge-1", nil
}

func (g *scriptedGateway) FetchPayment(ctx context.Context, paymentID string) (*adapter.ChargeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	info, ok := g.charges[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

// ---- notification sink ----

type recordSink struct {
	mu          sync.Mutex
	activations []string
	payments    []int64
	referrals   []int64
}

func (s *recordSink) ActivationUpdated(ctx context.Context, a *model.Activation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations = append(s.activations, a.ID)
}

func (s *recordSink) PaymentSettled(ctx context.Context, accountID int64, amount, newBalance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, amount)
}

func (s *recordSink) ReferralBonusPaid(ctx context.Context, accountID int64, bonus, newBalance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referrals = append(s.referrals, bonus)
}

func (s *recordSink) activationEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activations)
}

// ---- locker + rate limiter ----

type memLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]string)}
}

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return "", domain.ErrLockBusy
	}
	token := key + "-token"
	l.locks[key] = token
	return token, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[key] == token {
		delete(l.locks, key)
	}
	return nil
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.allow, nil
}

// ---- lifecycle stub for purchase tests ----

type recordLifecycle struct {
	mu      sync.Mutex
	started []string
}

func (m *recordLifecycle) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *recordLifecycle) Start(a *model.Activation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, a.ID)
}

func (m *recordLifecycle) Cancel(ctx context.Context, activationID string, accountID int64) error {
	return nil
}

func (m *recordLifecycle) RequestAnotherCode(ctx context.Context, activationID string, accountID int64) error {
	return nil
}

func (m *recordLifecycle) startedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}
