package models

import (
	"time"

	"github.com/google/uuid"
)

// Interest status enums. pending is the only mutable state.
const (
	InterestStatusPending   = "pending"
	InterestStatusAccepted  = "accepted"
	InterestStatusRejected  = "rejected"
	InterestStatusWithdrawn = "withdrawn"
)

// Interest is a contractor's claim on a lead. The contractor display name is
// snapshotted at submission time so the audit trail survives later renames.
type Interest struct {
	ID               uuid.UUID `json:"id"`
	LeadID           uuid.UUID `json:"lead_id"`
	ContractorID     uuid.UUID `json:"contractor_id"`
	ContractorName   string    `json:"contractor_name"`
	QuotedPriceCents int64     `json:"quoted_price_cents"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
