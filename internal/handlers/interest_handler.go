package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/craftbid/backend/internal/middleware"
	"github.com/craftbid/backend/internal/models"
	"github.com/craftbid/backend/internal/services"
)

// InterestHandler serves the bid subsystem endpoints.
type InterestHandler struct {
	Engine    MatchingEngine
	Leads     LeadReader
	Interests InterestReader
	Logger    *slog.Logger
}

type submitInterestRequest struct {
	QuotedPriceCents int64 `json:"quoted_price_cents"`
}

// SubmitInterest handles POST /leads/{id}/interests.
func (h *InterestHandler) SubmitInterest(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	leadID, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead id", Code: "validation"})
		return
	}
	var req submitInterestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: "validation"})
		return
	}
	interest, err := h.Engine.SubmitInterest(r.Context(), *p, leadID, req.QuotedPriceCents)
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, interest)
}

// ListByLead handles GET /leads/{id}/interests. The lead's customer and
// operators see every interest; a contractor sees only their own.
func (h *InterestHandler) ListByLead(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	leadID, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead id", Code: "validation"})
		return
	}
	lead, err := h.Leads.GetByID(r.Context(), leadID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "lead not found", Code: "not_found"})
		return
	}
	list, err := h.Interests.ListByLead(r.Context(), leadID)
	if err != nil {
		h.Logger.Error("list interests", "lead_id", leadID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	if p.Role == models.RoleContractor {
		own := list[:0]
		for _, i := range list {
			if i.ContractorID == p.ID {
				own = append(own, i)
			}
		}
		list = own
	} else if p.Role == models.RoleCustomer && lead.ReporterID != p.ID {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not authorized", Code: "not_authorized"})
		return
	}
	if list == nil {
		list = []*models.Interest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ListMine handles GET /interests, the contractor's own interests.
func (h *InterestHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil || p.Role != models.RoleContractor {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not authorized", Code: "not_authorized"})
		return
	}
	list, err := h.Interests.ListByContractor(r.Context(), p.ID)
	if err != nil {
		h.Logger.Error("list own interests", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	if list == nil {
		list = []*models.Interest{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Withdraw handles POST /interests/{id}/withdraw.
func (h *InterestHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid interest id", Code: "validation"})
		return
	}
	if err := h.Engine.WithdrawInterest(r.Context(), *p, id); err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.InterestStatusWithdrawn})
}

// Reject handles POST /interests/{id}/reject.
func (h *InterestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid interest id", Code: "validation"})
		return
	}
	if err := h.Engine.RejectInterest(r.Context(), *p, id); err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.InterestStatusRejected})
}

type acceptResponse struct {
	LeadID         string             `json:"lead_id"`
	LeadStatus     string             `json:"lead_status"`
	InterestID     string             `json:"interest_id"`
	InterestStatus string             `json:"interest_status"`
	PriceCents     int64              `json:"price_cents"`
	Contact        models.ContactInfo `json:"contact"`
}

func acceptResponseFrom(res *services.AcceptResult) acceptResponse {
	return acceptResponse{
		LeadID:         res.Lead.ID.String(),
		LeadStatus:     res.Lead.Status,
		InterestID:     res.Interest.ID.String(),
		InterestStatus: res.Interest.Status,
		PriceCents:     res.Interest.QuotedPriceCents,
		Contact:        res.Contact,
	}
}

// Accept handles POST /interests/{id}/accept, the accept-and-reveal
// operation. Safe to retry: a repeat call returns the same contact payload
// without a second charge.
func (h *InterestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid interest id", Code: "validation"})
		return
	}
	res, err := h.Engine.AcceptInterest(r.Context(), *p, id)
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptResponseFrom(res))
}
