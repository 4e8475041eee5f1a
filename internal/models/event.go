package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types emitted by the matching engine.
const (
	EventLeadCreated       = "lead.created"
	EventLeadAssigned      = "lead.assigned"
	EventLeadStatusChanged = "lead.status_changed"
	EventLeadCancelled     = "lead.cancelled"
	EventInterestSubmitted = "interest.submitted"
	EventInterestWithdrawn = "interest.withdrawn"
	EventInterestRejected  = "interest.rejected"
)

// Event is one row of the append-only change feed. Seq is a monotonic cursor
// assigned by the database; consumers resume with ?after=<seq> and must
// tolerate duplicates (delivery is at-least-once).
type Event struct {
	Seq          int64           `json:"seq"`
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	LeadID       uuid.UUID       `json:"lead_id"`
	ContractorID *uuid.UUID      `json:"contractor_id,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
