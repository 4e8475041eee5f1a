package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/craftbid/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts a new user inside the given transaction, so contractor
// onboarding (user + credit account + promotional grant) commits as one unit.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, u *User) error {
	return tx.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, phone, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash, u.DisplayName, u.Phone, u.Role).Scan(&u.CreatedAt)
}

// GetByEmail returns the user for login, or pgx.ErrNoRows.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, phone, role, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Phone, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, phone, role, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Phone, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ContactInfo resolves the contact payload revealed on accept.
func (r *Repository) ContactInfo(ctx context.Context, userID uuid.UUID) (models.ContactInfo, error) {
	var c models.ContactInfo
	err := r.pool.QueryRow(ctx, `
		SELECT display_name, email, phone FROM users WHERE id = $1
	`, userID).Scan(&c.Name, &c.Email, &c.Phone)
	return c, err
}

// DisplayName resolves the name snapshotted onto interests at submission.
func (r *Repository) DisplayName(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT display_name FROM users WHERE id = $1`, userID).Scan(&name)
	return name, err
}
