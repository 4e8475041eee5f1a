package models

import (
	"time"

	"github.com/google/uuid"
)

// Lead status enums. Forward progress only; completed and cancelled are terminal.
const (
	LeadStatusOpen       = "open"
	LeadStatusAssigned   = "assigned"
	LeadStatusScheduled  = "scheduled"
	LeadStatusInProgress = "in_progress"
	LeadStatusCompleted  = "completed"
	LeadStatusCancelled  = "cancelled"
)

// Trade categories a lead can be reported under.
const (
	TradeWater    = "water"
	TradeElectric = "electric"
	TradeHeating  = "heating"
	TradeOther    = "other"
)

type Lead struct {
	ID                 uuid.UUID  `json:"id"`
	ReporterID         uuid.UUID  `json:"reporter_id"`
	Trade              string     `json:"trade"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Lat                float64    `json:"lat"`
	Lng                float64    `json:"lng"`
	District           string     `json:"district"`
	Urgent             bool       `json:"urgent"`
	Status             string     `json:"status"`
	AssignedInterestID *uuid.UUID `json:"assigned_interest_id,omitempty"`
	CancelReason       *string    `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ValidTrade reports whether t is one of the known trade categories.
func ValidTrade(t string) bool {
	switch t {
	case TradeWater, TradeElectric, TradeHeating, TradeOther:
		return true
	}
	return false
}

// LeadStatusTerminal reports whether s is a terminal lead status.
func LeadStatusTerminal(s string) bool {
	return s == LeadStatusCompleted || s == LeadStatusCancelled
}

// NextLeadStatus maps each progress status to its sole successor.
// open -> assigned happens only through the accept operation and is
// deliberately absent here.
var NextLeadStatus = map[string]string{
	LeadStatusAssigned:   LeadStatusScheduled,
	LeadStatusScheduled:  LeadStatusInProgress,
	LeadStatusInProgress: LeadStatusCompleted,
}
