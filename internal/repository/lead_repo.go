package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbid/backend/internal/models"
)

type LeadRepo struct {
	pool *pgxpool.Pool
}

func NewLeadRepo(pool *pgxpool.Pool) *LeadRepo {
	return &LeadRepo{pool: pool}
}

const leadColumns = `id, reporter_id, trade, title, description, lat, lng, district, urgent, status, assigned_interest_id, cancel_reason, created_at, updated_at`

func scanLead(row pgx.Row) (*models.Lead, error) {
	var l models.Lead
	err := row.Scan(&l.ID, &l.ReporterID, &l.Trade, &l.Title, &l.Description, &l.Lat, &l.Lng, &l.District, &l.Urgent, &l.Status, &l.AssignedInterestID, &l.CancelReason, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadRepo) CreateTx(ctx context.Context, tx pgx.Tx, l *models.Lead) error {
	return tx.QueryRow(ctx, `
		INSERT INTO leads (id, reporter_id, trade, title, description, lat, lng, district, urgent, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, l.ID, l.ReporterID, l.Trade, l.Title, l.Description, l.Lat, l.Lng, l.District, l.Urgent, l.Status).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *LeadRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Lead, error) {
	return scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
}

// GetByIDForUpdate locks the lead row for the duration of the transaction.
// Every multi-entity mutation takes this lock first, so concurrent accepts on
// the same lead serialize here.
func (r *LeadRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Lead, error) {
	return scanLead(tx.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1 FOR UPDATE`, id))
}

// UpdateStatus moves the lead from exactly the expected status to the next
// one. Returns false when the lead was no longer in the expected status.
func (r *LeadRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET status = $3, updated_at = now() WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetAssigned marks an open lead assigned and records the winning interest.
// The status guard makes a lost race observable as RowsAffected() == 0.
func (r *LeadRepo) SetAssigned(ctx context.Context, tx pgx.Tx, id, interestID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET status = $3, assigned_interest_id = $2, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, interestID, models.LeadStatusAssigned, models.LeadStatusOpen)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCancelled cancels a lead currently in the expected status, recording the
// required reason.
func (r *LeadRepo) SetCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, reason string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET status = $3, cancel_reason = $4, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, from, models.LeadStatusCancelled, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LeadRepo) ListByReporter(ctx context.Context, reporterID uuid.UUID) ([]*models.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE reporter_id = $1 ORDER BY created_at DESC
	`, reporterID)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

// ListOpen returns open leads for the contractor-facing feed. district narrows
// by district label when non-empty; urgentOnly keeps urgent leads only.
func (r *LeadRepo) ListOpen(ctx context.Context, district string, urgentOnly bool) ([]*models.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE status = $1
		  AND ($2 = '' OR district = $2)
		  AND (NOT $3 OR urgent)
		ORDER BY urgent DESC, created_at DESC
	`, models.LeadStatusOpen, district, urgentOnly)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func collectLeads(rows pgx.Rows) ([]*models.Lead, error) {
	defer rows.Close()
	var list []*models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
