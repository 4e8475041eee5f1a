package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbid/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, contractor_id, balance_cents, version, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.CreditAccount, error) {
	var a models.CreditAccount
	err := row.Scan(&a.ID, &a.ContractorID, &a.BalanceCents, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) CreateTx(ctx context.Context, tx pgx.Tx, a *models.CreditAccount) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_accounts (id, contractor_id, balance_cents, version)
		VALUES ($1, $2, $3, 1)
		RETURNING version, created_at, updated_at
	`, a.ID, a.ContractorID, a.BalanceCents).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByContractorID(ctx context.Context, contractorID uuid.UUID) (*models.CreditAccount, error) {
	return scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM credit_accounts WHERE contractor_id = $1
	`, contractorID))
}

// GetByContractorIDForUpdate locks the account row. The account row is the
// hottest resource in the system (one contractor, many leads), so the lock is
// held only for the short debit-and-record section.
func (r *AccountRepo) GetByContractorIDForUpdate(ctx context.Context, tx pgx.Tx, contractorID uuid.UUID) (*models.CreditAccount, error) {
	return scanAccount(tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM credit_accounts WHERE contractor_id = $1 FOR UPDATE
	`, contractorID))
}

// ApplyDelta adjusts the balance by delta (negative for debits) and bumps the
// version. The balance >= 0 guard makes an overdraft impossible even if a
// caller skipped the balance check; RowsAffected() == 0 then surfaces it.
func (r *AccountRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta int64) (newBalance int64, ok bool, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE credit_accounts
		SET balance_cents = balance_cents + $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND balance_cents + $2 >= 0
		RETURNING balance_cents
	`, accountID, delta).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return newBalance, true, nil
}
