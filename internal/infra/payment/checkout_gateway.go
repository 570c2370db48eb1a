// File: internal/infra/payment/checkout_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"telegram-sms-market/internal/config"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*CheckoutGateway)(nil)

// CheckoutGateway implements the payment port against the checkout
// provider's REST API. The paying account id rides in external_reference
// so that webhook reconciliation can map a payment back to its account
// without any local pending-charge state.
type CheckoutGateway struct {
	baseURL     string
	accessToken string
	siteURL     string
	client      *http.Client
}

func NewCheckoutGateway(cfg config.PaymentConfig) *CheckoutGateway {
	return &CheckoutGateway{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		siteURL:     cfg.SiteURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *CheckoutGateway) Name() string { return "checkout" }

type chargeRequest struct {
	Amount            float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	ExternalReference string  `json:"external_reference"`
	BackURL           string  `json:"back_url,omitempty"`
}

type chargeResponse struct {
	ID     json.Number `json:"id"`
	PayURL string      `json:"init_point"`
}

func (g *CheckoutGateway) CreateCharge(ctx context.Context, accountID int64, amount int64, description string) (string, string, error) {
	reqBody := chargeRequest{
		Amount:            float64(amount) / 100,
		Description:       description,
		ExternalReference: strconv.FormatInt(accountID, 10),
		BackURL:           g.siteURL,
	}
	var resp chargeResponse
	if err := g.post(ctx, "/v1/charges", reqBody, &resp); err != nil {
		return "", "", fmt.Errorf("create charge: %w", err)
	}
	if resp.ID.String() == "" || resp.PayURL == "" {
		return "", "", fmt.Errorf("create charge: incomplete response (id=%q)", resp.ID.String())
	}
	return resp.ID.String(), resp.PayURL, nil
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	TransactionAmount float64     `json:"transaction_amount"`
	ExternalReference string      `json:"external_reference"`
}

func (g *CheckoutGateway) FetchPayment(ctx context.Context, paymentID string) (*adapter.ChargeInfo, error) {
	var resp paymentResponse
	if err := g.get(ctx, "/v1/payments/"+paymentID, &resp); err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}
	accountID, err := strconv.ParseInt(resp.ExternalReference, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("payment %s: bad external_reference %q", paymentID, resp.ExternalReference)
	}
	return &adapter.ChargeInfo{
		ID:        resp.ID.String(),
		Status:    mapStatus(resp.Status),
		Amount:    int64(resp.TransactionAmount*100 + 0.5),
		AccountID: accountID,
	}, nil
}

func mapStatus(s string) model.PaymentStatus {
	switch s {
	case "approved":
		return model.PaymentStatusApproved
	case "pending", "in_process", "authorized":
		return model.PaymentStatusPending
	default:
		return model.PaymentStatusRejected
	}
}

func (g *CheckoutGateway) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.send(req, out)
}

func (g *CheckoutGateway) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	return g.send(req, out)
}

func (g *CheckoutGateway) send(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
