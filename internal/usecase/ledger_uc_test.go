// File: internal/usecase/ledger_uc_test.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
)

func newLedgerFixture() (*memAccountRepo, *memActivationRepo, LedgerUseCase) {
	accounts := newMemAccountRepo()
	activations := newMemActivationRepo()
	tm := &memTxManager{accounts: accounts, activations: activations}
	return accounts, activations, NewLedgerUseCase(accounts, activations, tm, testLogger())
}

func mustActivation(t *testing.T, id string, accountID, price int64) *model.Activation {
	t.Helper()
	a, err := model.NewActivation(id, accountID, "smsbower", "wa", "73", "5511999990000", price)
	if err != nil {
		t.Fatalf("NewActivation: %v", err)
	}
	return a
}

func TestDebitForPurchaseInsufficientFunds(t *testing.T) {
	accounts, activations, ledger := newLedgerFixture()
	accounts.seed(10, 50, nil)

	err := ledger.DebitForPurchase(context.Background(), mustActivation(t, "a1", 10, 100))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if got := accounts.balance(10); got != 50 {
		t.Fatalf("balance mutated on failed debit: %d", got)
	}
	if activations.get("a1") != nil {
		t.Fatalf("activation recorded despite failed debit")
	}
}

func TestDebitForPurchaseDuplicateIDRollsBack(t *testing.T) {
	accounts, _, ledger := newLedgerFixture()
	accounts.seed(10, 500, nil)

	if err := ledger.DebitForPurchase(context.Background(), mustActivation(t, "a1", 10, 100)); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	err := ledger.DebitForPurchase(context.Background(), mustActivation(t, "a1", 10, 100))
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
	if got := accounts.balance(10); got != 400 {
		t.Fatalf("duplicate id debited again: balance %d, want 400", got)
	}
}

func TestDebitThenRefundRestoresBalance(t *testing.T) {
	accounts, activations, ledger := newLedgerFixture()
	accounts.seed(10, 100, nil)
	ctx := context.Background()

	if err := ledger.DebitForPurchase(ctx, mustActivation(t, "a1", 10, 75)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if got := accounts.balance(10); got != 25 {
		t.Fatalf("after debit balance %d, want 25", got)
	}

	refunded, err := ledger.SettleAndRefund(ctx, "a1", 10, 75, model.OutcomeUserCancelled)
	if err != nil || !refunded {
		t.Fatalf("settle: refunded=%v err=%v", refunded, err)
	}
	if got := accounts.balance(10); got != 100 {
		t.Fatalf("after refund balance %d, want 100", got)
	}
	if a := activations.get("a1"); !a.Settled || a.Outcome != model.OutcomeUserCancelled {
		t.Fatalf("activation not settled with outcome: %+v", a)
	}
}

func TestSettleAndRefundExactlyOnce(t *testing.T) {
	accounts, _, ledger := newLedgerFixture()
	accounts.seed(10, 100, nil)
	ctx := context.Background()

	if err := ledger.DebitForPurchase(ctx, mustActivation(t, "a1", 10, 75)); err != nil {
		t.Fatalf("debit: %v", err)
	}

	// Watchdog and user-cancel racing on the same activation.
	outcomes := []model.Outcome{model.OutcomeTimedOut, model.OutcomeUserCancelled}
	var wg sync.WaitGroup
	var mu sync.Mutex
	refunds := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := ledger.SettleAndRefund(ctx, "a1", 10, 75, outcomes[i%2])
			if err != nil {
				t.Errorf("settle: %v", err)
				return
			}
			if ok {
				mu.Lock()
				refunds++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if refunds != 1 {
		t.Fatalf("refunds = %d, want exactly 1", refunds)
	}
	if got := accounts.balance(10); got != 100 {
		t.Fatalf("balance %d, want 100 (single refund)", got)
	}
}

func TestFinalizeDeliveredDoesNotCredit(t *testing.T) {
	accounts, activations, ledger := newLedgerFixture()
	accounts.seed(10, 100, nil)
	ctx := context.Background()

	if err := ledger.DebitForPurchase(ctx, mustActivation(t, "a1", 10, 60)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	flipped, err := ledger.FinalizeDelivered(ctx, "a1")
	if err != nil || !flipped {
		t.Fatalf("finalize: flipped=%v err=%v", flipped, err)
	}
	if got := accounts.balance(10); got != 40 {
		t.Fatalf("balance %d, want 40 (no refund for delivered)", got)
	}
	if a := activations.get("a1"); a.Outcome != model.OutcomeDelivered {
		t.Fatalf("outcome = %q, want delivered", a.Outcome)
	}

	// A refund attempt after finalization must be a no-op.
	refunded, err := ledger.SettleAndRefund(ctx, "a1", 10, 60, model.OutcomeTimedOut)
	if err != nil || refunded {
		t.Fatalf("refund after finalize: refunded=%v err=%v", refunded, err)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	_, _, ledger := newLedgerFixture()
	if _, err := ledger.Credit(context.Background(), 10, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}
