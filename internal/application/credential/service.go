package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/challenges-api/internal/domain"
	"github.com/challenges-api/internal/pkg/id"
	"github.com/challenges-api/internal/pkg/otp"
	"github.com/challenges-api/internal/pkg/password"
	pkgtoken "github.com/challenges-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// secretHashCost is the bcrypt cost for ephemeral secrets (codes and reset
// tokens). They are short-lived, so the cheaper-than-password cost is enough.
const secretHashCost = 10

type VerifyCodeRequest struct {
	Email            *string `json:"email" validate:"omitempty,email"`
	PhoneNumber      *string `json:"phone_number"`
	VerificationCode string  `json:"verification_code" validate:"required,len=6,numeric"`
}

type LoginRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number"`
	Password    string  `json:"password" validate:"required"`
}

type VerifyLoginRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phone_number"`
	AuthCode    string  `json:"auth_code" validate:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the signed bearer and the session created by a
// successful second-factor check.
type LoginResult struct {
	Bearer       string
	RefreshToken string
	Session      *domain.Session
}

// Service is the credential lifecycle manager: it issues, validates, expires
// and consumes the ephemeral secrets behind registration verification, the
// sign-in second factor and password reset. All state lives in the stores;
// the service itself is stateless between calls.
type Service interface {
	IssueVerificationCode(ctx context.Context, u *domain.User) (string, error)
	VerifyRegistration(ctx context.Context, req VerifyCodeRequest) error
	ResendVerificationCode(ctx context.Context, req domain.HandleRequest) (string, error)
	Login(ctx context.Context, req LoginRequest) (string, error)
	VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*LoginResult, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
}

type credentialStore interface {
	Put(ctx context.Context, c *domain.UserCredential) error
	Get(ctx context.Context, userID, purpose string) (*domain.UserCredential, error)
	Delete(ctx context.Context, userID, purpose string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	MarkVerified(ctx context.Context, userID, profileID string) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
}

type profileStore interface {
	Put(ctx context.Context, p *domain.Profile) error
}

type jwtSigner interface {
	Sign(userID, sessionID string) (string, error)
}

type mailer interface {
	SendEmail(to, subject, htmlBody string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type ServiceDeps struct {
	CredentialRepo credentialStore
	UserRepo       userStore
	SessionRepo    sessionStore
	ProfileRepo    profileStore
	Mailer         mailer
	SMSSender      smsSender
	JWTProvider    jwtSigner

	VerifyCodeTTL   time.Duration
	LoginCodeTTL    time.Duration
	ResetTokenTTL   time.Duration
	RefreshTokenTTL time.Duration
	FrontendBaseURL string
}

type service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	return &service{deps: deps}
}

// IssueVerificationCode creates (or replaces) the registration code for u and
// dispatches it. The plaintext code is returned to the caller; the store only
// ever sees the hash.
func (s *service) IssueVerificationCode(ctx context.Context, u *domain.User) (string, error) {
	plain, err := s.issue(ctx, u, domain.PurposeVerify, s.deps.VerifyCodeTTL)
	if err != nil {
		return "", err
	}
	s.notify(ctx, u, "Verify your account",
		fmt.Sprintf("<p>Your verification code is <b>%s</b>.</p>", plain),
		fmt.Sprintf("Your verification code is %s", plain))
	return plain, nil
}

func (s *service) VerifyRegistration(ctx context.Context, req VerifyCodeRequest) error {
	u, err := s.resolveHandle(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return err
	}
	cred, err := s.deps.CredentialRepo.Get(ctx, u.UserID, domain.PurposeVerify)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		// Known account, no pending code: the two cases need different
		// client messaging.
		if u.Verified {
			return fmt.Errorf("account is already verified: %w", domain.ErrAlreadyVerified)
		}
		return fmt.Errorf("no verification code outstanding: %w", domain.ErrNoCodeOutstanding)
	}
	if err := s.checkSecret(ctx, cred, req.VerificationCode, domain.ErrInvalidCode); err != nil {
		return err
	}
	s.consume(ctx, cred)

	// First (and only) verification: create the profile and flip the flag.
	now := time.Now().UTC()
	profile := &domain.Profile{
		ProfileID:   id.New(),
		UserID:      u.UserID,
		DisplayName: u.Username,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.ProfileRepo.Put(ctx, profile); err != nil {
		return err
	}
	if err := s.deps.UserRepo.MarkVerified(ctx, u.UserID, profile.ProfileID); err != nil {
		return err
	}
	s.notify(ctx, u, "Welcome aboard",
		"<p>Your account has been verified. Happy challenging!</p>",
		"Your account has been verified.")
	return nil
}

func (s *service) ResendVerificationCode(ctx context.Context, req domain.HandleRequest) (string, error) {
	u, err := s.resolveHandle(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return "", err
	}
	if u.Verified {
		return "", fmt.Errorf("account is already verified: %w", domain.ErrAlreadyVerified)
	}
	// Replaces any outstanding code in place and restarts its expiry window.
	return s.IssueVerificationCode(ctx, u)
}

// Login checks the password (first factor) and issues the short-lived sign-in
// code (second factor). Unknown handle, unverified account and wrong password
// are deliberately indistinguishable to the caller.
func (s *service) Login(ctx context.Context, req LoginRequest) (string, error) {
	u, err := s.resolveHandle(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		if errors.Is(err, domain.ErrBadRequest) {
			return "", err
		}
		return "", fmt.Errorf("invalid email/phone or password: %w", domain.ErrUnauthorized)
	}
	if !u.Verified {
		return "", fmt.Errorf("invalid email/phone or password: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return "", fmt.Errorf("invalid email/phone or password: %w", domain.ErrUnauthorized)
	}
	plain, err := s.issue(ctx, u, domain.PurposeLogin, s.deps.LoginCodeTTL)
	if err != nil {
		return "", err
	}
	s.notify(ctx, u, "Your sign-in code",
		fmt.Sprintf("<p>Your sign-in code is <b>%s</b>. It expires in %d minutes.</p>", plain, int(s.deps.LoginCodeTTL.Minutes())),
		fmt.Sprintf("Your sign-in code is %s", plain))
	return plain, nil
}

func (s *service) VerifyLogin(ctx context.Context, req VerifyLoginRequest) (*LoginResult, error) {
	u, err := s.resolveHandle(ctx, req.Email, req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	cred, err := s.deps.CredentialRepo.Get(ctx, u.UserID, domain.PurposeLogin)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("no authentication code outstanding: %w", domain.ErrNoCodeOutstanding)
	}
	if err := s.checkSecret(ctx, cred, req.AuthCode, domain.ErrInvalidCode); err != nil {
		return nil, err
	}
	s.consume(ctx, cred)

	refreshToken, err := pkgtoken.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID:        id.New(),
		UserID:           u.UserID,
		Enable:           true,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(s.deps.RefreshTokenTTL).Unix(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.deps.SessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	bearer, err := s.deps.JWTProvider.Sign(u.UserID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return &LoginResult{Bearer: bearer, RefreshToken: refreshToken, Session: sess}, nil
}

// ForgotPassword issues a reset token for the account behind email and mails
// the reset link. The link is also returned to the caller.
func (s *service) ForgotPassword(ctx context.Context, email string) (string, error) {
	u, err := s.deps.UserRepo.GetByEmail(ctx, email)
	if err != nil || u.DeletedAt != nil {
		return "", fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	plain, err := pkgtoken.NewResetToken()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), secretHashCost)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	cred := &domain.UserCredential{
		UserID:     u.UserID,
		Purpose:    domain.PurposeReset,
		SecretHash: string(hash),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.deps.ResetTokenTTL).Unix(),
	}
	if err := s.deps.CredentialRepo.Put(ctx, cred); err != nil {
		return "", err
	}
	link := fmt.Sprintf("%s/reset-password?token=%s&userId=%s", s.deps.FrontendBaseURL, plain, u.UserID)
	s.notify(ctx, u, "Reset your password",
		fmt.Sprintf(`<p>Click <a href=%q>here</a> to reset your password. The link expires in %d minutes.</p>`, link, int(s.deps.ResetTokenTTL.Minutes())),
		"A password reset was requested for your account.")
	return link, nil
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	cred, err := s.deps.CredentialRepo.Get(ctx, req.UserID, domain.PurposeReset)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("invalid or expired password reset token: %w", domain.ErrInvalidToken)
	}
	if err := s.checkSecret(ctx, cred, req.Token, domain.ErrInvalidToken); err != nil {
		return err
	}
	if err := password.Validate(req.Password); err != nil {
		// Token stays outstanding: the client may retry with a stronger
		// password until the TTL reaps it.
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.deps.UserRepo.Update(ctx, req.UserID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		return err
	}
	s.consume(ctx, cred)

	if u, err := s.deps.UserRepo.Get(ctx, req.UserID); err == nil {
		s.notify(ctx, u, "Your password was changed",
			"<p>Your password was reset successfully. If this wasn't you, contact support immediately.</p>",
			"Your password was reset successfully.")
	}
	return nil
}

// issue generates a fresh 6-digit code for the given purpose and writes it
// over any outstanding record. The expiry clock always restarts: the record
// carries a new created_at/expires_at pair (resend is a full replacement, not
// an in-place secret swap).
func (s *service) issue(ctx context.Context, u *domain.User, purpose string, ttl time.Duration) (string, error) {
	plain, err := otp.New()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), secretHashCost)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	cred := &domain.UserCredential{
		UserID:     u.UserID,
		Purpose:    purpose,
		SecretHash: string(hash),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl).Unix(),
	}
	if err := s.deps.CredentialRepo.Put(ctx, cred); err != nil {
		return "", err
	}
	return plain, nil
}

// checkSecret runs the shared validation ladder: an expired record is deleted
// and reported as such; a mismatch leaves the record intact so the same
// secret can be retried until it expires or is replaced.
func (s *service) checkSecret(ctx context.Context, cred *domain.UserCredential, supplied string, mismatch error) error {
	if cred.Expired(time.Now()) {
		s.consume(ctx, cred)
		return fmt.Errorf("credential expired: %w", domain.ErrCodeExpired)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(supplied)); err != nil {
		return fmt.Errorf("secret mismatch: %w", mismatch)
	}
	return nil
}

// consume deletes a credential record. Deletion failure is logged, not
// propagated — the caller's operation has already succeeded or failed on its
// own terms, and the TTL will reap a leftover record.
func (s *service) consume(ctx context.Context, cred *domain.UserCredential) {
	if err := s.deps.CredentialRepo.Delete(ctx, cred.UserID, cred.Purpose); err != nil {
		slog.Warn("failed to delete credential record", "user_id", cred.UserID, "purpose", cred.Purpose, "err", err)
	}
}

// resolveHandle loads the account behind an email XOR phone handle.
// Soft-deleted accounts resolve as unknown.
func (s *service) resolveHandle(ctx context.Context, email, phone *string) (*domain.User, error) {
	var (
		u   *domain.User
		err error
	)
	switch {
	case email != nil && phone != nil:
		return nil, fmt.Errorf("provide either email or phone_number, not both: %w", domain.ErrBadRequest)
	case email != nil:
		u, err = s.deps.UserRepo.GetByEmail(ctx, *email)
	case phone != nil:
		u, err = s.deps.UserRepo.GetByPhone(ctx, *phone)
	default:
		return nil, fmt.Errorf("email or phone_number required: %w", domain.ErrBadRequest)
	}
	if err != nil || u.DeletedAt != nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return u, nil
}

// notify dispatches over the account's registered channel, fire-and-forget.
// Delivery failure never fails the calling operation; the credential is
// already persisted.
func (s *service) notify(ctx context.Context, u *domain.User, subject, htmlBody, smsBody string) {
	userID, to := u.UserID, u.Handle()
	switch {
	case u.Email != nil:
		go func() {
			if err := s.deps.Mailer.SendEmail(to, subject, htmlBody); err != nil {
				slog.Warn("email dispatch failed", "user_id", userID, "subject", subject, "err", err)
			}
		}()
	case u.PhoneNumber != nil:
		// The sender is nil when SNS init failed at startup; drop rather
		// than panic on a detached goroutine.
		if s.deps.SMSSender == nil {
			slog.Warn("sms sender not configured, dropping notification", "user_id", userID)
			return
		}
		go func() {
			// Detached from the request context: the send must outlive it.
			if err := s.deps.SMSSender.SendSMS(context.WithoutCancel(ctx), to, smsBody); err != nil {
				slog.Warn("sms dispatch failed", "user_id", userID, "err", err)
			}
		}()
	}
}
