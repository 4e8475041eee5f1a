package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbid/backend/internal/models"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// InsertTx appends an event inside the caller's transaction, so the change
// feed commits atomically with the state change it describes. seq comes from
// a bigserial and is the consumer-facing cursor.
func (r *EventRepo) InsertTx(ctx context.Context, tx pgx.Tx, e *models.Event) error {
	return tx.QueryRow(ctx, `
		INSERT INTO events (id, type, lead_id, contractor_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, created_at
	`, e.ID, e.Type, e.LeadID, e.ContractorID, e.Payload).Scan(&e.Seq, &e.CreatedAt)
}

// ListAfter returns up to limit events with seq greater than after, oldest
// first. This is the replay path for reconnecting consumers.
func (r *EventRepo) ListAfter(ctx context.Context, after int64, limit int) ([]*models.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seq, id, type, lead_id, contractor_id, payload, created_at
		FROM events WHERE seq > $1 ORDER BY seq ASC LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &e.LeadID, &e.ContractorID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
