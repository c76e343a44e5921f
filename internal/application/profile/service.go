package profile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/challenges-api/internal/domain"
)

// avatarURLTTL bounds how long a presigned avatar link stays valid.
const avatarURLTTL = 15 * time.Minute

// Service manages user profiles. Profile records are created by the
// credential lifecycle manager on verification; this service only reads and
// mutates them.
type Service interface {
	Get(ctx context.Context, profileID string) (*domain.Profile, error)
	GetByUser(ctx context.Context, userID string) (*domain.Profile, error)
	Update(ctx context.Context, userID, profileID string, req domain.UpdateProfileRequest) (*domain.Profile, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader, contentType string) (*domain.Profile, error)
	RemoveAvatar(ctx context.Context, userID string) error
}

type profileStore interface {
	Get(ctx context.Context, profileID string) (*domain.Profile, error)
	GetByUser(ctx context.Context, userID string) (*domain.Profile, error)
	Update(ctx context.Context, profileID string, updates map[string]interface{}) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type service struct {
	repo  profileStore
	store objectStore
}

func NewService(repo profileStore, store objectStore) Service {
	return &service{repo: repo, store: store}
}

func (s *service) Get(ctx context.Context, profileID string) (*domain.Profile, error) {
	p, err := s.repo.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	s.attachAvatarURL(ctx, p)
	return p, nil
}

func (s *service) GetByUser(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.attachAvatarURL(ctx, p)
	return p, nil
}

func (s *service) Update(ctx context.Context, userID, profileID string, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	p, err := s.repo.Get(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("cannot update another user's profile: %w", domain.ErrForbidden)
	}
	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = *req.DisplayName
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if len(updates) == 0 {
		return p, nil
	}
	if err := s.repo.Update(ctx, profileID, updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, profileID)
}

// UploadAvatar stores the image under a per-user key, replacing any previous
// avatar object.
func (s *service) UploadAvatar(ctx context.Context, userID string, r io.Reader, contentType string) (*domain.Profile, error) {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return nil, fmt.Errorf("unsupported avatar content type %q: %w", contentType, domain.ErrBadRequest)
	}
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("avatars/%s", userID)
	if _, err := s.store.Upload(ctx, key, r, contentType); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p.ProfileID, map[string]interface{}{"avatar_key": key}); err != nil {
		return nil, err
	}
	return s.Get(ctx, p.ProfileID)
}

// RemoveAvatar deletes the stored avatar object and clears the profile's key.
func (s *service) RemoveAvatar(ctx context.Context, userID string) error {
	p, err := s.repo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if p.AvatarKey == "" {
		return nil
	}
	if err := s.store.Delete(ctx, p.AvatarKey); err != nil {
		return err
	}
	return s.repo.Update(ctx, p.ProfileID, map[string]interface{}{"avatar_key": ""})
}

// attachAvatarURL is best-effort: a presigning failure leaves the URL empty
// rather than failing the profile read.
func (s *service) attachAvatarURL(ctx context.Context, p *domain.Profile) {
	if p.AvatarKey == "" {
		return
	}
	if url, err := s.store.PresignedURL(ctx, p.AvatarKey, avatarURLTTL); err == nil {
		p.AvatarURL = url
	}
}
