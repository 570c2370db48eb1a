// File: internal/infra/httpapi/server_test.go
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/usecase"
)

type stubPayments struct {
	mu     sync.Mutex
	events []string
	result usecase.PaymentResult
	err    error
}

func (s *stubPayments) InitiateTopUp(ctx context.Context, accountID int64, amount int64) (string, error) {
	if amount <= 0 {
		return "", domain.ErrInvalidArgument
	}
	return "https://pay.example/1", nil
}

func (s *stubPayments) HandlePaymentEvent(ctx context.Context, providerPaymentID string) (usecase.PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, providerPaymentID)
	return s.result, s.err
}

type stubPurchase struct {
	act *model.Activation
	err error
}

func (s *stubPurchase) Purchase(ctx context.Context, accountID int64, serviceKey string) (*model.Activation, error) {
	return s.act, s.err
}

type stubLifecycle struct{ cancelErr, retryErr error }

func (s *stubLifecycle) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (s *stubLifecycle) Start(a *model.Activation)     {}
func (s *stubLifecycle) Cancel(ctx context.Context, activationID string, accountID int64) error {
	return s.cancelErr
}
func (s *stubLifecycle) RequestAnotherCode(ctx context.Context, activationID string, accountID int64) error {
	return s.retryErr
}

type stubAccounts struct{}

func (stubAccounts) EnsureAccount(ctx context.Context, telegramID int64, referrerID *int64) (*model.Account, error) {
	a, _ := model.NewAccount(telegramID, referrerID)
	return a, nil
}
func (stubAccounts) Balance(ctx context.Context, telegramID int64) (int64, error) { return 150, nil }
func (stubAccounts) OwnedActivations(ctx context.Context, telegramID int64) ([]*model.Activation, error) {
	return []*model.Activation{{ID: "a1"}, {ID: "a2", Settled: true, Outcome: model.OutcomeDelivered}}, nil
}

func newTestServer(payments *stubPayments, purchase *stubPurchase, lifecycle *stubLifecycle) *httptest.Server {
	log := zerolog.Nop()
	s := NewServer(0, payments, purchase, lifecycle, stubAccounts{}, &log)
	return httptest.NewServer(s.Handler())
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhookAcceptsPaymentEvent(t *testing.T) {
	payments := &stubPayments{result: usecase.PaymentProcessed}
	srv := newTestServer(payments, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/webhook/payments", `{"type":"payment","data":{"id":12345}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(payments.events) != 1 || payments.events[0] != "12345" {
		t.Fatalf("events = %v", payments.events)
	}
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	payments := &stubPayments{result: usecase.PaymentProcessed}
	srv := newTestServer(payments, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/webhook/payments", `{"type":"plan","data":{"id":1}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(payments.events) != 0 {
		t.Fatalf("non-payment event dispatched: %v", payments.events)
	}
}

func TestWebhookFailureTriggersRedelivery(t *testing.T) {
	payments := &stubPayments{err: errors.New("gateway down")}
	srv := newTestServer(payments, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/webhook/payments", `{"type":"payment","data":{"id":"77"}}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the gateway retries", resp.StatusCode)
	}
}

func TestWebhookQueryStringIDWithEmptyBody(t *testing.T) {
	payments := &stubPayments{result: usecase.PaymentProcessed}
	srv := newTestServer(payments, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	// Some notification modes deliver the id in the query string only.
	resp := postJSON(t, srv.URL+"/webhook/payments?id=555", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(payments.events) != 1 || payments.events[0] != "555" {
		t.Fatalf("events = %v", payments.events)
	}
}

func TestWebhookMissingID(t *testing.T) {
	srv := newTestServer(&stubPayments{}, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/webhook/payments", `{"type":"payment","data":{}}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestPurchaseEndpointStatusMapping(t *testing.T) {
	act, _ := model.NewActivation("a1", 10, "smsbower", "wa", "73", "5511999990000", 75)
	cases := []struct {
		name   string
		stub   *stubPurchase
		status int
	}{
		{"created", &stubPurchase{act: act}, http.StatusCreated},
		{"insufficient funds", &stubPurchase{err: domain.ErrInsufficientFunds}, http.StatusPaymentRequired},
		{"rate limited", &stubPurchase{err: domain.ErrRateLimited}, http.StatusTooManyRequests},
		{"no numbers", &stubPurchase{err: domain.ErrNoNumbers}, http.StatusConflict},
		{"unknown service", &stubPurchase{err: domain.ErrUnsupportedService}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubPayments{}, tc.stub, &stubLifecycle{})
			defer srv.Close()
			resp := postJSON(t, srv.URL+"/api/purchase", `{"account_id":10,"service_key":"wa"}`)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestCancelEndpointStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"too early", domain.ErrCancelTooEarly, http.StatusConflict},
		{"codes delivered", domain.ErrCodesDelivered, http.StatusConflict},
		{"finished", domain.ErrActivationFinished, http.StatusConflict},
		{"foreign", domain.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&stubPayments{}, &stubPurchase{}, &stubLifecycle{cancelErr: tc.err})
			defer srv.Close()
			resp := postJSON(t, srv.URL+"/api/activations/a1/cancel", `{"account_id":10}`)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestTopUpEndpoint(t *testing.T) {
	srv := newTestServer(&stubPayments{}, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/topup", `{"account_id":10,"amount":1000}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/topup", `{"account_id":10,"amount":0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("zero amount status = %d", resp.StatusCode)
	}
}

func TestAccountEndpoint(t *testing.T) {
	srv := newTestServer(&stubPayments{}, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/accounts/10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/api/accounts/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp2.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubPayments{}, &stubPurchase{}, &stubLifecycle{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
