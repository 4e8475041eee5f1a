package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbid/backend/internal/models"
)

type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, account_id, entry_type, amount_cents, reference_id, balance_after_cents, created_at`

func scanEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(&e.ID, &e.AccountID, &e.EntryType, &e.AmountCents, &e.ReferenceID, &e.BalanceAfterCents, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertTx appends a ledger entry inside the given transaction. The table has
// a unique index on (entry_type, reference_id) as the last line of defense
// against a double write racing the idempotency read.
func (r *LedgerRepo) InsertTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, account_id, entry_type, amount_cents, reference_id, balance_after_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.EntryType, e.AmountCents, e.ReferenceID, e.BalanceAfterCents).Scan(&e.CreatedAt)
}

// GetByReference returns the entry previously written for this
// (entry_type, reference_id) pair, or pgx.ErrNoRows. Read inside the caller's
// transaction so the idempotency decision sees uncommitted local writes.
func (r *LedgerRepo) GetByReference(ctx context.Context, tx pgx.Tx, entryType string, referenceID uuid.UUID) (*models.LedgerEntry, error) {
	return scanEntry(tx.QueryRow(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries WHERE entry_type = $1 AND reference_id = $2
	`, entryType, referenceID))
}

func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// SumByAccount returns the running sum of signed entry amounts for the
// account. It must always equal the account's balance_cents.
func (r *LedgerRepo) SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE account_id = $1
	`, accountID).Scan(&sum)
	return sum, err
}
