package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/craftbid/backend/internal/middleware"
	"github.com/craftbid/backend/internal/models"
	"github.com/craftbid/backend/internal/services"
)

// AccountReader is the read-side credit account access.
type AccountReader interface {
	GetByContractorID(ctx context.Context, contractorID uuid.UUID) (*models.CreditAccount, error)
}

// LedgerReader is the read-side ledger access.
type LedgerReader interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
	SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// CreditGrantor applies operator credit grants through the ledger.
type CreditGrantor interface {
	Credit(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID, amount int64, entryType string, referenceID uuid.UUID) (int64, error)
}

// DashboardHandler serves the contractor read side: balance, ledger history,
// and the operator top-up path.
type DashboardHandler struct {
	Pool     services.TxBeginner
	Accounts AccountReader
	Ledger   LedgerReader
	Grantor  CreditGrantor
	Logger   *slog.Logger
}

type accountResponse struct {
	AccountID    string `json:"account_id"`
	ContractorID string `json:"contractor_id"`
	BalanceCents int64  `json:"balance_cents"`
	Version      int64  `json:"version"`
}

// GetMe handles GET /account/me for contractors.
func (h *DashboardHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil || p.Role != models.RoleContractor {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not authorized", Code: "not_authorized"})
		return
	}
	acc, err := h.Accounts.GetByContractorID(r.Context(), p.ID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "credit account not found", Code: "unknown_account"})
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		AccountID:    acc.ID.String(),
		ContractorID: acc.ContractorID.String(),
		BalanceCents: acc.BalanceCents,
		Version:      acc.Version,
	})
}

type ledgerResponse struct {
	BalanceCents   int64                 `json:"balance_cents"`
	LedgerSumCents int64                 `json:"ledger_sum_cents"`
	Entries        []*models.LedgerEntry `json:"entries"`
}

// ListCreditLedger handles GET /credit-ledger. The response carries both the
// account balance and the running entry sum; the two must always match.
func (h *DashboardHandler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil || p.Role != models.RoleContractor {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not authorized", Code: "not_authorized"})
		return
	}
	acc, err := h.Accounts.GetByContractorID(r.Context(), p.ID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "credit account not found", Code: "unknown_account"})
		return
	}
	entries, err := h.Ledger.ListByAccount(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("list ledger entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	sum, err := h.Ledger.SumByAccount(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("sum ledger entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{
		BalanceCents:   acc.BalanceCents,
		LedgerSumCents: sum,
		Entries:        entries,
	})
}

type topUpRequest struct {
	ContractorID string `json:"contractor_id"`
	AmountCents  int64  `json:"amount_cents"`
	ReferenceID  string `json:"reference_id,omitempty"`
}

// TopUp handles POST /credit/top-up: an operator grant. A client-supplied
// reference_id makes the grant idempotent across retries; without one a fresh
// reference is generated and the call is single-shot.
func (h *DashboardHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil || p.Role != models.RoleOperator {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not authorized", Code: "not_authorized"})
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: "validation"})
		return
	}
	contractorID, err := uuid.Parse(req.ContractorID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid contractor_id", Code: "validation"})
		return
	}
	if req.AmountCents <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "amount_cents must be positive", Code: "validation"})
		return
	}
	referenceID := uuid.New()
	if req.ReferenceID != "" {
		referenceID, err = uuid.Parse(req.ReferenceID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid reference_id", Code: "validation"})
			return
		}
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin top-up tx", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	defer tx.Rollback(r.Context())

	newBalance, err := h.Grantor.Credit(r.Context(), tx, contractorID, req.AmountCents, models.EntryTopUp, referenceID)
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit top-up tx", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contractor_id":     contractorID.String(),
		"new_balance_cents": newBalance,
		"reference_id":      referenceID.String(),
	})
}
