package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbid/backend/internal/models"
)

type InterestRepo struct {
	pool *pgxpool.Pool
}

func NewInterestRepo(pool *pgxpool.Pool) *InterestRepo {
	return &InterestRepo{pool: pool}
}

const interestColumns = `id, lead_id, contractor_id, contractor_name, quoted_price_cents, status, created_at, updated_at`

func scanInterest(row pgx.Row) (*models.Interest, error) {
	var i models.Interest
	err := row.Scan(&i.ID, &i.LeadID, &i.ContractorID, &i.ContractorName, &i.QuotedPriceCents, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// CreateTx inserts the interest only while its lead is still open, in a single
// constrained statement so two concurrent submissions cannot both slip past a
// read-then-write check. pgx.ErrNoRows means the lead was not open; a 23505
// from the partial unique index on (lead_id, contractor_id) WHERE status <>
// 'withdrawn' means the contractor already holds a live interest.
func (r *InterestRepo) CreateTx(ctx context.Context, tx pgx.Tx, i *models.Interest) error {
	return tx.QueryRow(ctx, `
		INSERT INTO interests (id, lead_id, contractor_id, contractor_name, quoted_price_cents, status)
		SELECT $1, l.id, $3, $4, $5, $6 FROM leads l WHERE l.id = $2 AND l.status = $7
		RETURNING created_at, updated_at
	`, i.ID, i.LeadID, i.ContractorID, i.ContractorName, i.QuotedPriceCents, i.Status, models.LeadStatusOpen).Scan(&i.CreatedAt, &i.UpdatedAt)
}

func (r *InterestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Interest, error) {
	return scanInterest(r.pool.QueryRow(ctx, `SELECT `+interestColumns+` FROM interests WHERE id = $1`, id))
}

// GetByIDForUpdate locks the interest row. Callers that also lock the lead
// must take the lead lock first; that ordering is what keeps accept and
// direct-assign deadlock free.
func (r *InterestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Interest, error) {
	return scanInterest(tx.QueryRow(ctx, `SELECT `+interestColumns+` FROM interests WHERE id = $1 FOR UPDATE`, id))
}

// GetPendingByLeadAndContractor returns the contractor's pending interest on
// the lead, if any. Used by the operator direct-assign path.
func (r *InterestRepo) GetPendingByLeadAndContractor(ctx context.Context, tx pgx.Tx, leadID, contractorID uuid.UUID) (*models.Interest, error) {
	return scanInterest(tx.QueryRow(ctx, `
		SELECT `+interestColumns+` FROM interests
		WHERE lead_id = $1 AND contractor_id = $2 AND status = $3
		FOR UPDATE
	`, leadID, contractorID, models.InterestStatusPending))
}

// UpdateStatus moves the interest from exactly the expected status. Returns
// false when the interest was no longer in that status.
func (r *InterestRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE interests SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *InterestRepo) ListByLead(ctx context.Context, leadID uuid.UUID) ([]*models.Interest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+interestColumns+` FROM interests WHERE lead_id = $1 ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	return collectInterests(rows)
}

func (r *InterestRepo) ListByContractor(ctx context.Context, contractorID uuid.UUID) ([]*models.Interest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+interestColumns+` FROM interests WHERE contractor_id = $1 ORDER BY created_at DESC
	`, contractorID)
	if err != nil {
		return nil, err
	}
	return collectInterests(rows)
}

func collectInterests(rows pgx.Rows) ([]*models.Interest, error) {
	defer rows.Close()
	var list []*models.Interest
	for rows.Next() {
		i, err := scanInterest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}
