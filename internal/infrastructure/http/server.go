package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ledger-service/internal/application"
	"ledger-service/internal/domain"
	"ledger-service/internal/infrastructure/logx"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Server struct {
	svc  *application.LedgerService
	ping func(ctx context.Context) error
}

func NewServer(svc *application.LedgerService) *Server { return &Server{svc: svc} }

// SetReadyCheck installs the probe used by /readyz.
func (s *Server) SetReadyCheck(fn func(ctx context.Context) error) { s.ping = fn }

type accountRequest struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

type accountResponse struct {
	ID      string `json:"id"`
	Balance string `json:"balance"`
}

type transferRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type transferResponse struct {
	ID        string          `json:"id"`
	From      accountResponse `json:"from"`
	To        accountResponse `json:"to"`
	Amount    string          `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var body accountRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acc, err := s.svc.OpenAccount(r.Context(), body.ID, body.Balance)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccount(acc))
}

func (s *Server) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.svc.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccount(acc))
}

func (s *Server) Transfer(w http.ResponseWriter, r *http.Request) {
	var body transferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tr, err := s.svc.TransferOnce(r.Context(), r.Header.Get("X-Idempotency-Key"), body.From, body.To, body.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transferResponse{
		ID:        tr.ID.String(),
		From:      toAccount(tr.From),
		To:        toAccount(tr.To),
		Amount:    tr.Amount.StringFixed(2),
		CreatedAt: tr.CreatedAt,
	})
}

func (s *Server) Probe(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Probe(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"value": v})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logx.WithFields(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

// statusFor maps use case errors to HTTP. A commit error means the outcome
// is unknown, so it is reported apart from plain storage failures.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrCommit):
		return http.StatusServiceUnavailable, "commit unconfirmed"
	case errors.Is(err, application.ErrConnection):
		return http.StatusServiceUnavailable, "storage unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAccountID),
		errors.Is(err, domain.ErrSameAccount):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func toAccount(a domain.Account) accountResponse {
	return accountResponse{ID: a.ID, Balance: a.Balance.StringFixed(2)}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}
