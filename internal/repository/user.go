package repository

import (
	"context"

	"github.com/hray3182/MindIt/internal/apperr"
	"github.com/hray3182/MindIt/internal/database"
	"github.com/hray3182/MindIt/internal/models"
)

type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate returns the user owning phone, creating it on first contact.
// Calling it repeatedly with the same phone yields the same user id.
func (r *UserRepository) GetOrCreate(ctx context.Context, phone string) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (phone_number) VALUES ($1)
		 ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		 RETURNING user_id, phone_number, created_at`,
		phone,
	).Scan(&user.UserID, &user.Phone, &user.CreatedAt)
	if err != nil {
		return nil, apperr.NewStoreFailure("upsert user", err)
	}
	return user, nil
}
