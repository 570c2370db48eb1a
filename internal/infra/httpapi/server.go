// File: internal/infra/httpapi/server.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-sms-market/internal/domain"
	"telegram-sms-market/internal/infra/logging"
	"telegram-sms-market/internal/usecase"
)

// Server exposes the payment webhook, the internal API the messaging
// front-end calls, and the operational endpoints. It carries no business
// state; every decision is delegated to the use cases.
type Server struct {
	http      *http.Server
	payments  usecase.PaymentUseCase
	purchase  usecase.PurchaseUseCase
	lifecycle usecase.LifecycleManager
	accounts  usecase.AccountUseCase
	log       *zerolog.Logger
}

func NewServer(port int, payments usecase.PaymentUseCase, purchase usecase.PurchaseUseCase, lifecycle usecase.LifecycleManager, accounts usecase.AccountUseCase, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	s := &Server{
		payments:  payments,
		purchase:  purchase,
		lifecycle: lifecycle,
		accounts:  accounts,
		log:       &l,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/payments", s.handlePaymentWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/accounts", s.handleEnsureAccount)
		r.Post("/purchase", s.handlePurchase)
		r.Post("/activations/{id}/cancel", s.handleCancel)
		r.Post("/activations/{id}/retry", s.handleRetry)
		r.Post("/topup", s.handleTopUp)
		r.Get("/accounts/{id}", s.handleAccount)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// traceContext carries chi's request id as the trace id the loggers pick up.
func traceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			r = r.WithContext(logging.WithTraceID(r.Context(), reqID))
		}
		next.ServeHTTP(w, r)
	})
}

// webhookEvent is the gateway's notification envelope. Only the payment id
// is taken from it; status and amount are re-fetched from the gateway.
type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	decodeErr := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&ev)
	paymentID := ev.Data.ID.String()
	// Some gateway notification modes put the id in the query string and
	// send an empty or non-JSON body.
	if paymentID == "" {
		paymentID = r.URL.Query().Get("id")
	}
	if decodeErr != nil && paymentID == "" {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if ev.Type != "" && ev.Type != "payment" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if paymentID == "" {
		http.Error(w, "missing payment id", http.StatusBadRequest)
		return
	}

	ctx := logging.WithPaymentID(r.Context(), paymentID)
	log := logging.With(ctx, s.log)
	result, err := s.payments.HandlePaymentEvent(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, "bad payment id", http.StatusBadRequest)
			return
		}
		// Non-2xx makes the gateway redeliver later; the idempotency guards
		// make the retry safe.
		log.Error().Err(err).Msg("webhook processing failed")
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	log.Info().Str("result", string(result)).Msg("webhook handled")
	writeJSON(w, http.StatusOK, map[string]string{"result": string(result)})
}

type ensureAccountRequest struct {
	AccountID  int64  `json:"account_id"`
	ReferrerID *int64 `json:"referrer_id,omitempty"`
}

func (s *Server) handleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	var req ensureAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID <= 0 {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	acct, err := s.accounts.EnsureAccount(r.Context(), req.AccountID, req.ReferrerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": acct.TelegramID,
		"balance":    acct.Balance,
	})
}

type purchaseRequest struct {
	AccountID  int64  `json:"account_id"`
	ServiceKey string `json:"service_key"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID <= 0 || req.ServiceKey == "" {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	act, err := s.purchase.Purchase(logging.WithAccountID(r.Context(), req.AccountID), req.AccountID, req.ServiceKey)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"activation_id": act.ID,
		"full_number":   act.FullNumber,
		"local_number":  act.LocalNumber,
		"price":         act.Price,
		"service_key":   act.ServiceKey,
	})
}

type actionRequest struct {
	AccountID int64 `json:"account_id"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID <= 0 {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lifecycle.Cancel(logging.WithActivationID(r.Context(), id), id, req.AccountID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "cancelled"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID <= 0 {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.lifecycle.RequestAnotherCode(logging.WithActivationID(r.Context(), id), id, req.AccountID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "retry_requested"})
}

type topUpRequest struct {
	AccountID int64 `json:"account_id"`
	Amount    int64 `json:"amount"` // centavos
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID <= 0 {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	payURL, err := s.payments.InitiateTopUp(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pay_url": payURL})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "bad account id", http.StatusBadRequest)
		return
	}
	balance, err := s.accounts.Balance(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	acts, err := s.accounts.OwnedActivations(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	open := 0
	for _, a := range acts {
		if !a.Finished() {
			open++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id":       id,
		"balance":          balance,
		"activations":      len(acts),
		"open_activations": open,
	})
}

// writeDomainError maps the business sentinels onto HTTP statuses the
// front-end branches on; everything else is a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "bad request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrInsufficientFunds):
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrNoNumbers):
		http.Error(w, "no numbers available", http.StatusConflict)
	case errors.Is(err, domain.ErrUnsupportedService):
		http.Error(w, "unsupported service", http.StatusNotFound)
	case errors.Is(err, domain.ErrCancelTooEarly):
		http.Error(w, "cancel not allowed yet", http.StatusConflict)
	case errors.Is(err, domain.ErrCodesDelivered):
		http.Error(w, "codes already delivered", http.StatusConflict)
	case errors.Is(err, domain.ErrActivationFinished):
		http.Error(w, "activation already finished", http.StatusConflict)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
