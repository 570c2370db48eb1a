// File: internal/infra/payment/checkout_gateway_test.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"telegram-sms-market/internal/config"
	"telegram-sms-market/internal/domain/model"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *CheckoutGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCheckoutGateway(config.PaymentConfig{
		BaseURL:     srv.URL,
		AccessToken: "token-123",
		SiteURL:     "https://t.me/bot",
	})
}

func TestCreateChargeSendsAccountReference(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/charges" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Errorf("authorization = %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["external_reference"] != "42" {
			t.Errorf("external_reference = %v", body["external_reference"])
		}
		if body["transaction_amount"] != 10.0 {
			t.Errorf("transaction_amount = %v, want 10.0", body["transaction_amount"])
		}
		fmt.Fprint(w, `{"id":555,"init_point":"https://pay.example/555"}`)
	})

	chargeID, payURL, err := g.CreateCharge(context.Background(), 42, 1000, "Recarga de saldo")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if chargeID != "555" || payURL != "https://pay.example/555" {
		t.Fatalf("got (%q,%q)", chargeID, payURL)
	}
}

func TestFetchPaymentMapsStatusAndAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want model.PaymentStatus
	}{
		{"approved", model.PaymentStatusApproved},
		{"pending", model.PaymentStatusPending},
		{"in_process", model.PaymentStatusPending},
		{"rejected", model.PaymentStatusRejected},
		{"cancelled", model.PaymentStatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			raw := tc.raw
			g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/payments/p1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				fmt.Fprintf(w, `{"id":"p1","status":%q,"transaction_amount":12.34,"external_reference":"42"}`, raw)
			})
			info, err := g.FetchPayment(context.Background(), "p1")
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if info.Status != tc.want {
				t.Fatalf("status = %q, want %q", info.Status, tc.want)
			}
			if info.Amount != 1234 || info.AccountID != 42 {
				t.Fatalf("info = %+v", info)
			}
		})
	}
}

func TestFetchPaymentRejectsBadReference(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"p1","status":"approved","transaction_amount":5,"external_reference":"garbage"}`)
	})
	if _, err := g.FetchPayment(context.Background(), "p1"); err == nil {
		t.Fatal("non-numeric external_reference accepted")
	}
}

func TestGatewayErrorStatus(t *testing.T) {
	g := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	})
	if _, _, err := g.CreateCharge(context.Background(), 42, 1000, "x"); err == nil {
		t.Fatal("http 401 not surfaced")
	}
}
