package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/campuskit/room-reservation/internal/model"
)

// UserRepo reads accounts from the 'users' table. Provisioning is owned
// by the administration collaborator, so there is no insert path here.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, full_name, password_hash, role, advisor_id, is_active, created_at, updated_at`

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		role      string
		advisorID sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &role,
		&advisorID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Role, _ = model.ParseRole(role)
	if advisorID.Valid {
		v := uint64(advisorID.Int64)
		u.AdvisorID = &v
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, q, email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`
	return scanUser(r.DB.QueryRowContext(ctx, q, id))
}
