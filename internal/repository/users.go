package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tourbook/internal/models"
)

type UserRepositoryPG struct {
	q sqlx.ExtContext
}

var _ UserRepository = (*UserRepositoryPG)(nil)

func NewUserRepository(q sqlx.ExtContext) *UserRepositoryPG {
	return &UserRepositoryPG{q: q}
}

const userColumns = `id, name, email, password_hash, role, created_at`

func (r *UserRepositoryPG) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := sqlx.GetContext(ctx, r.q, user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "User", id)
	}
	return user, nil
}

func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := sqlx.GetContext(ctx, r.q, user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, notFound(err, "User", email)
	}
	return user, nil
}
