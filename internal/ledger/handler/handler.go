// Package handler exposes the credit ledger over HTTP for the signed-in user.
// Authentication itself is an external collaborator; the handler only reads
// the user ID the auth middleware placed in the request context.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"spendgate/internal/ledger/models"
	dErrors "spendgate/pkg/domain-errors"
	"spendgate/pkg/platform/httputil"
	"spendgate/pkg/requestcontext"
)

const defaultTransactionLimit = 20

// Ledger is the slice of the ledger service the handler depends on.
type Ledger interface {
	EnsureAccount(ctx context.Context, userID string) (*models.Account, error)
	Transactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error)
}

type Handler struct {
	ledger Ledger
	logger *slog.Logger
}

func New(ledger Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// Register mounts the credit routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/credits", h.HandleGetCredits)
	r.Get("/credits/transactions", h.HandleListTransactions)
}

// CreditsResponse is the balance summary for the signed-in user.
type CreditsResponse struct {
	Credits     int `json:"credits"`
	TotalEarned int `json:"total_earned"`
	TotalUsed   int `json:"total_used"`
}

// HandleGetCredits returns the caller's balance, creating the account with
// the signup grant on first touch.
func (h *Handler) HandleGetCredits(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID == "" {
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	account, err := h.ledger.EnsureAccount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load credits", "error", err, "user_id", userID)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, CreditsResponse{
		Credits:     account.Balance,
		TotalEarned: account.TotalEarned,
		TotalUsed:   account.TotalUsed,
	})
}

// HandleListTransactions returns the caller's transaction history, newest
// first. ?limit=N caps the page, defaulting to 20.
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := requestcontext.UserID(r.Context())
	if userID == "" {
		httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	txns, err := h.ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err, "user_id", userID)
		httputil.WriteError(w, err)
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}
