package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/craftbid/backend/internal/models"
)

// ErrInsufficientFunds is returned when a debit would drive the balance
// negative. It is an expected outcome, not a fault.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrUnknownAccount is returned when no credit account exists for the
// contractor.
var ErrUnknownAccount = errors.New("unknown credit account")

// ErrReferenceConflict is returned when a (entry_type, reference_id) pair is
// already recorded against a different account. Only a true replay, same
// account and same reference, no-ops; a cross-account reuse is refused.
var ErrReferenceConflict = errors.New("reference id already used by another account")

// LedgerAccountRepo is the minimal account repository interface for the ledger.
type LedgerAccountRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.CreditAccount) error
	GetByContractorIDForUpdate(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID) (*models.CreditAccount, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta int64) (newBalance int64, ok bool, err error)
}

// LedgerEntryRepo is the minimal entry repository interface for the ledger.
type LedgerEntryRepo interface {
	InsertTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	GetByReference(ctx context.Context, tx pgx.Tx, entryType string, referenceID uuid.UUID) (*models.LedgerEntry, error)
}

// Ledger owns contractor balances. Every balance change happens inside the
// caller's transaction and is paired with exactly one append-only entry; a
// repeated call with an already-recorded (entryType, referenceID) pair is a
// no-op that returns the prior result.
type Ledger struct {
	Accounts LedgerAccountRepo
	Entries  LedgerEntryRepo
}

func NewLedger(accounts LedgerAccountRepo, entries LedgerEntryRepo) *Ledger {
	return &Ledger{Accounts: accounts, Entries: entries}
}

// Debit charges amount from the contractor's account. referenceID must be
// deterministic for the operation being paid for (the interest id for lead
// unlocks) so retries replay instead of double-charging.
func (l *Ledger) Debit(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID, amount int64, entryType string, referenceID uuid.UUID) (int64, error) {
	return l.apply(ctx, tx, contractorID, -amount, entryType, referenceID)
}

// Credit adds amount to the contractor's account, same contract as Debit.
func (l *Ledger) Credit(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID, amount int64, entryType string, referenceID uuid.UUID) (int64, error) {
	return l.apply(ctx, tx, contractorID, amount, entryType, referenceID)
}

func (l *Ledger) apply(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID, delta int64, entryType string, referenceID uuid.UUID) (int64, error) {
	if delta == 0 {
		return 0, errors.New("ledger: zero amount")
	}
	acc, err := l.Accounts.GetByContractorIDForUpdate(ctx, tx, contractorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownAccount
		}
		return 0, err
	}

	// Idempotent replay: an entry for this reference already committed.
	prior, err := l.Entries.GetByReference(ctx, tx, entryType, referenceID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	if prior != nil {
		if prior.AccountID != acc.ID {
			return 0, ErrReferenceConflict
		}
		return prior.BalanceAfterCents, nil
	}

	if delta < 0 && acc.BalanceCents+delta < 0 {
		return 0, ErrInsufficientFunds
	}
	newBalance, ok, err := l.Accounts.ApplyDelta(ctx, tx, acc.ID, delta)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Guarded update refused the delta despite the locked balance check.
		return 0, ErrInsufficientFunds
	}

	entry := &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         acc.ID,
		EntryType:         entryType,
		AmountCents:       delta,
		ReferenceID:       referenceID,
		BalanceAfterCents: newBalance,
	}
	// The unique (entry_type, reference_id) index backstops the replay check:
	// a concurrent replay that slipped past it fails here and the caller
	// retries onto the replay path.
	if err := l.Entries.InsertTx(ctx, tx, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// OpenAccount creates the contractor's credit account at onboarding. A
// non-zero starting balance is granted as a promotional_credit entry
// referencing the contractor id, so reconciliation holds from day one.
func (l *Ledger) OpenAccount(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID, startingBalanceCents int64) (*models.CreditAccount, error) {
	acc := &models.CreditAccount{
		ID:           uuid.New(),
		ContractorID: contractorID,
		BalanceCents: 0,
	}
	if err := l.Accounts.CreateTx(ctx, tx, acc); err != nil {
		return nil, err
	}
	if startingBalanceCents > 0 {
		newBalance, err := l.Credit(ctx, tx, contractorID, startingBalanceCents, models.EntryPromotionalCredit, contractorID)
		if err != nil {
			return nil, err
		}
		acc.BalanceCents = newBalance
	}
	return acc, nil
}
