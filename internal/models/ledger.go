package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry_type enums. Amounts are stored signed (debits negative), so
// SUM(amount_cents) per account reconciles against the account balance.
const (
	EntryLeadUnlockDebit   = "lead_unlock_debit"
	EntryPromotionalCredit = "promotional_credit"
	EntryTopUp             = "top_up"
	EntryRefund            = "refund"
)

// LedgerEntry is append-only. (entry_type, reference_id) is unique, which is
// what makes retried debits a no-op instead of a double charge.
type LedgerEntry struct {
	ID                uuid.UUID `json:"id"`
	AccountID         uuid.UUID `json:"account_id"`
	EntryType         string    `json:"entry_type"`
	AmountCents       int64     `json:"amount_cents"`
	ReferenceID       uuid.UUID `json:"reference_id"`
	BalanceAfterCents int64     `json:"balance_after_cents"`
	CreatedAt         time.Time `json:"created_at"`
}
