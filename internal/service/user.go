package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/set-night/trackerbot/internal/domain"
	"github.com/set-night/trackerbot/internal/repository"
)

type UserService struct {
	users  repository.UserRepository
	issues repository.IssueRepository
}

func NewUserService(users repository.UserRepository, issues repository.IssueRepository) *UserService {
	return &UserService{users: users, issues: issues}
}

// Register creates or refreshes the user from a shared contact.
func (s *UserService) Register(ctx context.Context, user *domain.User) error {
	if err := s.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	slog.Info("user registered", "user_id", user.TelegramID)
	return nil
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return s.users.Get(ctx, telegramID)
}

// BindIssue records that the user created the issue.
func (s *UserService) BindIssue(ctx context.Context, telegramID int64, issueKey string) error {
	return s.issues.Create(ctx, telegramID, issueKey)
}

func (s *UserService) IssueCount(ctx context.Context, telegramID int64) (int, error) {
	return s.issues.CountByUser(ctx, telegramID)
}
