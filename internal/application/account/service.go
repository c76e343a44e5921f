package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/challenges-api/internal/domain"
	"github.com/challenges-api/internal/pkg/id"
	"github.com/challenges-api/internal/pkg/password"
	"golang.org/x/crypto/bcrypt"
)

// Service owns the account directory: registration and lookups. Accounts are
// created unverified; only the credential lifecycle manager flips the flag.
type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error)
	Delete(ctx context.Context, userID string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	SoftDelete(ctx context.Context, userID string) error
	ScanPage(ctx context.Context, limit int32, cursor string) ([]domain.User, string, error)
}

type sessionStore interface {
	SoftDeleteByUser(ctx context.Context, userID string) error
}

type service struct {
	repo     userStore
	sessions sessionStore
}

func NewService(repo userStore, sessions sessionStore) Service {
	return &service{repo: repo, sessions: sessions}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if req.Email != nil && req.PhoneNumber != nil {
		return nil, fmt.Errorf("provide either email or phone_number, not both: %w", domain.ErrBadRequest)
	}
	if req.Email == nil && req.PhoneNumber == nil {
		return nil, fmt.Errorf("email or phone_number required: %w", domain.ErrBadRequest)
	}
	if err := password.Validate(req.Password); err != nil {
		return nil, err
	}
	if req.Email != nil {
		if _, err := s.repo.GetByEmail(ctx, *req.Email); err == nil {
			return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
		}
	}
	if req.PhoneNumber != nil {
		if _, err := s.repo.GetByPhone(ctx, *req.PhoneNumber); err == nil {
			return nil, fmt.Errorf("phone number already registered: %w", domain.ErrConflict)
		}
	}
	if req.Username != "" {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     req.Username,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return u, nil
}

func (s *service) List(ctx context.Context, limit int, cursor string) ([]domain.User, string, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ScanPage(ctx, int32(limit), cursor)
}

// Delete soft-deletes the account and disables every session it owns. The
// record survives for audit; lookups filter on deleted_at.
func (s *service) Delete(ctx context.Context, userID string) error {
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if err := s.repo.SoftDelete(ctx, userID); err != nil {
		return err
	}
	return s.sessions.SoftDeleteByUser(ctx, userID)
}
