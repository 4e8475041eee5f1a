package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal roles issued by the identity provider.
const (
	RoleCustomer   = "customer"
	RoleContractor = "contractor"
	RoleOperator   = "operator"
)

// Principal is the authenticated caller as the core sees it: an opaque id and
// a role. The identity layer is trusted to have verified credentials already.
type Principal struct {
	ID   uuid.UUID
	Role string
}

// ValidRole reports whether r is a known principal role.
func ValidRole(r string) bool {
	return r == RoleCustomer || r == RoleContractor || r == RoleOperator
}

// CreditAccount holds a contractor's spendable balance. version increases on
// every balance change and backs optimistic conflict detection.
type CreditAccount struct {
	ID           uuid.UUID `json:"id"`
	ContractorID uuid.UUID `json:"contractor_id"`
	BalanceCents int64     `json:"balance_cents"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ContactInfo is the customer contact payload revealed to the accepted
// contractor. It is never included in any other read path.
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
