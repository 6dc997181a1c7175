package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/set-night/trackerbot/internal/domain"
)

// UserRepository is the registry of users who shared their contact.
type UserRepository interface {
	Get(ctx context.Context, telegramID int64) (*domain.User, error)
	Upsert(ctx context.Context, user *domain.User) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	const query = `
        SELECT user_id, first_name, last_name, username, phone_number, created_at, updated_at
        FROM users WHERE user_id = $1`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(
		&u.TelegramID,
		&u.FirstName,
		&u.LastName,
		&u.Username,
		&u.Phone,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (user_id, first_name, last_name, username, phone_number)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE
        SET first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            username = EXCLUDED.username,
            phone_number = EXCLUDED.phone_number,
            updated_at = NOW()
        RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.TelegramID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Phone,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
