package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IssueRepository is the ticket ownership index (user id <-> issue key).
type IssueRepository interface {
	Create(ctx context.Context, telegramID int64, issueKey string) error
	CountByUser(ctx context.Context, telegramID int64) (int, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

func (r *issueRepository) Create(ctx context.Context, telegramID int64, issueKey string) error {
	const query = `
        INSERT INTO issues (user_id, tracker_id)
        VALUES ($1, $2)
        ON CONFLICT (user_id, tracker_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, telegramID, issueKey); err != nil {
		return fmt.Errorf("create issue ownership: %w", err)
	}
	return nil
}

func (r *issueRepository) CountByUser(ctx context.Context, telegramID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM issues WHERE user_id = $1`, telegramID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count issues: %w", err)
	}
	return n, nil
}
