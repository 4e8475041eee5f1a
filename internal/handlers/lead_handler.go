package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/craftbid/backend/internal/middleware"
	"github.com/craftbid/backend/internal/models"
	"github.com/craftbid/backend/internal/services"
)

// MatchingEngine is the slice of the engine the HTTP surface drives.
type MatchingEngine interface {
	CreateLead(ctx context.Context, p models.Principal, in services.CreateLeadInput) (*models.Lead, error)
	SubmitInterest(ctx context.Context, p models.Principal, leadID uuid.UUID, quotedPriceCents int64) (*models.Interest, error)
	WithdrawInterest(ctx context.Context, p models.Principal, interestID uuid.UUID) error
	RejectInterest(ctx context.Context, p models.Principal, interestID uuid.UUID) error
	AcceptInterest(ctx context.Context, p models.Principal, interestID uuid.UUID) (*services.AcceptResult, error)
	DirectAssign(ctx context.Context, p models.Principal, leadID, contractorID uuid.UUID, priceCents int64, feeExempt bool) (*services.AcceptResult, error)
	AdvanceLeadStatus(ctx context.Context, p models.Principal, leadID uuid.UUID, next string) (*models.Lead, error)
	CancelLead(ctx context.Context, p models.Principal, leadID uuid.UUID, reason string) (*models.Lead, error)
}

// LeadReader is the read-side lead access for lists and detail views.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error)
	ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]*models.Lead, error)
	ListOpen(ctx context.Context, district string, urgentOnly bool) ([]*models.Lead, error)
}

// InterestReader is the read-side interest access.
type InterestReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Interest, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]*models.Interest, error)
	ListByContractor(ctx context.Context, contractorID uuid.UUID) ([]*models.Interest, error)
}

// ContactSource resolves contact payloads for the reveal-on-read path.
type ContactSource interface {
	ContactInfo(ctx context.Context, userID uuid.UUID) (models.ContactInfo, error)
}

// LeadHandler serves the lead lifecycle endpoints.
type LeadHandler struct {
	Engine    MatchingEngine
	Leads     LeadReader
	Interests InterestReader
	Contacts  ContactSource
	Logger    *slog.Logger
}

type createLeadRequest struct {
	Trade       string  `json:"trade"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	District    string  `json:"district"`
	Urgent      bool    `json:"urgent"`
}

// CreateLead handles POST /leads.
func (h *LeadHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}
	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: "validation"})
		return
	}
	lead, err := h.Engine.CreateLead(r.Context(), *p, services.CreateLeadInput{
		Trade:       req.Trade,
		Title:       req.Title,
		Description: req.Description,
		Lat:         req.Lat,
		Lng:         req.Lng,
		District:    req.District,
		Urgent:      req.Urgent,
	})
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

type leadDetailResponse struct {
	*models.Lead
	Contact *models.ContactInfo `json:"contact,omitempty"`
}

// GetLead handles GET /leads/{id}. The customer contact payload is attached
// only for the contractor whose interest was accepted; everyone else sees the
// lead without it.
func (h *LeadHandler) GetLead(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead id", Code: "validation"})
		return
	}
	lead, err := h.Leads.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "lead not found", Code: "not_found"})
		return
	}
	resp := leadDetailResponse{Lead: lead}
	if lead.AssignedInterestID != nil && p.Role == models.RoleContractor {
		interest, err := h.Interests.GetByID(r.Context(), *lead.AssignedInterestID)
		if err == nil && interest.ContractorID == p.ID {
			contact, err := h.Contacts.ContactInfo(r.Context(), lead.ReporterID)
			if err != nil {
				h.Logger.Error("resolve contact", "lead_id", lead.ID, "error", err)
			} else {
				resp.Contact = &contact
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListLeads handles GET /leads. Customers get their own leads; contractors
// get the open-lead feed, optionally narrowed by ?district= and ?urgent=true.
func (h *LeadHandler) ListLeads(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "unauthorized"})
		return
	}
	var (
		list []*models.Lead
		err  error
	)
	switch p.Role {
	case models.RoleCustomer:
		list, err = h.Leads.ListByReporter(r.Context(), p.ID)
	default:
		q := r.URL.Query()
		list, err = h.Leads.ListOpen(r.Context(), q.Get("district"), q.Get("urgent") == "true")
	}
	if err != nil {
		h.Logger.Error("list leads", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
		return
	}
	if list == nil {
		list = []*models.Lead{}
	}
	writeJSON(w, http.StatusOK, list)
}

type advanceRequest struct {
	Status string `json:"status"`
}

// AdvanceLead handles POST /leads/{id}/status.
func (h *LeadHandler) AdvanceLead(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead id", Code: "validation"})
		return
	}
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: "validation"})
		return
	}
	lead, err := h.Engine.AdvanceLeadStatus(r.Context(), *p, id, req.Status)
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelLead handles POST /leads/{id}/cancel.
func (h *LeadHandler) CancelLead(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead id", Code: "validation"})
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: "validation"})
		return
	}
	lead, err := h.Engine.CancelLead(r.Context(), *p, id, req.Reason)
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type directAssignRequest struct {
	ContractorID string `json:"contractor_id"`
	PriceCents   int64  `json:"price_cents"`
	FeeExempt    bool   `json:"fee_exempt"`
}

// DirectAssign handles POST /leads/{id}/assign, the operator path that
// bypasses bidding but runs the same accept unit.
func (h *LeadHandler) DirectAssign(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	id, ok := pathID(r)
	if p == nil || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid lead id", Code: "validation"})
		return
	}
	var req directAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON", Code: "validation"})
		return
	}
	contractorID, err := uuid.Parse(req.ContractorID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid contractor_id", Code: "validation"})
		return
	}
	res, err := h.Engine.DirectAssign(r.Context(), *p, id, contractorID, req.PriceCents, req.FeeExempt)
	if err != nil {
		writeEngineError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptResponseFrom(res))
}
