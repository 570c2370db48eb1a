// File: internal/infra/providers/client.go
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/domain/model"
	"telegram-sms-market/internal/domain/ports/adapter"
	"telegram-sms-market/internal/infra/metrics"
)

// apiClient speaks the plain-text "handler_api" protocol shared by the
// number vendors we resell from. Responses are colon-separated tokens
// (ACCESS_NUMBER:id:number, STATUS_OK:code, ...) except getPrices, which
// returns JSON.
type apiClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(name, baseURL, apiKey string) *apiClient {
	return &apiClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) call(ctx context.Context, action string, params url.Values) (string, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	params.Set("action", action)

	start := time.Now()
	body, err := c.do(ctx, params)
	metrics.ObserveProviderRequest(c.name, action, time.Since(start).Milliseconds(), err)
	if err != nil {
		return "", err
	}
	return body, nil
}

func (c *apiClient) do(ctx context.Context, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%s read response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s http %d: %s", c.name, resp.StatusCode, truncate(string(raw), 128))
	}
	body := strings.TrimSpace(string(raw))
	if err := asProtocolError(body); err != nil {
		return "", err
	}
	return body, nil
}

// asProtocolError maps the vendors' error tokens. NO_NUMBERS is the only
// one callers branch on; the rest are terminal for the request.
func asProtocolError(body string) error {
	switch {
	case body == "NO_NUMBERS":
		return domain.ErrNoNumbers
	case body == "NO_BALANCE":
		return fmt.Errorf("vendor balance exhausted: %w", domain.ErrOperationFailed)
	case body == "BAD_KEY", body == "BAD_ACTION", body == "BAD_SERVICE",
		strings.HasPrefix(body, "ERROR"):
		return fmt.Errorf("vendor rejected request: %s", body)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseAccessNumber parses "ACCESS_NUMBER:<id>:<number>".
func parseAccessNumber(body string) (*adapter.NumberOrder, error) {
	parts := strings.SplitN(body, ":", 3)
	if len(parts) != 3 || parts[0] != "ACCESS_NUMBER" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("unexpected getNumber response: %s", truncate(body, 64))
	}
	return &adapter.NumberOrder{ActivationID: parts[1], FullNumber: parts[2]}, nil
}

// parseStatus maps a getStatus body onto the port's status result.
// STATUS_WAIT_RETRY carries the last code already received; reporting it
// as delivered is harmless because code appends are idempotent upstream.
func parseStatus(body string) (adapter.StatusResult, error) {
	token, rest := body, ""
	if i := strings.Index(body, ":"); i >= 0 {
		token, rest = body[:i], body[i+1:]
	}
	switch token {
	case "STATUS_OK", "ACCESS_ACTIVATION", "STATUS_WAIT_RETRY":
		if rest == "" {
			return adapter.StatusResult{State: adapter.NumberWaiting}, nil
		}
		return adapter.StatusResult{State: adapter.NumberDelivered, Code: rest}, nil
	case "STATUS_WAIT_CODE", "STATUS_WAIT_RESEND":
		return adapter.StatusResult{State: adapter.NumberWaiting}, nil
	case "STATUS_CANCEL", "NO_ACTIVATION":
		// NO_ACTIVATION means the vendor no longer tracks the id, which for
		// our purposes is the same as a vendor-side cancel.
		return adapter.StatusResult{State: adapter.NumberCancelled}, nil
	}
	return adapter.StatusResult{State: adapter.NumberUnknown}, fmt.Errorf("unexpected getStatus response: %s", truncate(body, 64))
}

// priceTable is the getPrices JSON shape: country -> service -> price -> stock.
// Prices come as decimal strings in the vendor currency.
type priceTable map[string]map[string]map[string]int

func parsePrices(body, country, serviceKey string) ([]model.PriceTier, error) {
	var table priceTable
	if err := json.Unmarshal([]byte(body), &table); err != nil {
		return nil, fmt.Errorf("parse getPrices response: %w", err)
	}
	services, ok := table[country]
	if !ok {
		return nil, nil
	}
	byPrice, ok := services[serviceKey]
	if !ok {
		return nil, nil
	}
	tiers := make([]model.PriceTier, 0, len(byPrice))
	for price, count := range byPrice {
		cents, err := priceToCentavos(price)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, model.PriceTier{Price: cents, Available: count})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Price < tiers[j].Price })
	return tiers, nil
}

func priceToCentavos(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return int64(f*100 + 0.5), nil
}

func centavosToPrice(cents int64) string {
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}
