package credential

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/challenges-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockCredentialStore struct{ mock.Mock }

func (m *mockCredentialStore) Put(ctx context.Context, c *domain.UserCredential) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockCredentialStore) Get(ctx context.Context, userID, purpose string) (*domain.UserCredential, error) {
	args := m.Called(ctx, userID, purpose)
	if c, _ := args.Get(0).(*domain.UserCredential); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCredentialStore) Delete(ctx context.Context, userID, purpose string) error {
	return m.Called(ctx, userID, purpose).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}
func (m *mockUserStore) MarkVerified(ctx context.Context, userID, profileID string) error {
	return m.Called(ctx, userID, profileID).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}

type mockProfileStore struct{ mock.Mock }

func (m *mockProfileStore) Put(ctx context.Context, p *domain.Profile) error {
	return m.Called(ctx, p).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, phone, msg string) error {
	return m.Called(ctx, phone, msg).Error(0)
}

type mockJWTSigner struct{ mock.Mock }

func (m *mockJWTSigner) Sign(userID, sessionID string) (string, error) {
	args := m.Called(userID, sessionID)
	return args.String(0), args.Error(1)
}

// --- builder ---

func newService(cs *mockCredentialStore, us *mockUserStore, ss *mockSessionStore, ps *mockProfileStore, ml *mockMailer, sms *mockSMSSender, jwt *mockJWTSigner) Service {
	// Notifications run on detached goroutines; the mocks just swallow them.
	if ml != nil {
		ml.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	if sms != nil {
		sms.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	return NewService(ServiceDeps{
		CredentialRepo:  cs,
		UserRepo:        us,
		SessionRepo:     ss,
		ProfileRepo:     ps,
		Mailer:          ml,
		SMSSender:       sms,
		JWTProvider:     jwt,
		VerifyCodeTTL:   24 * time.Hour,
		LoginCodeTTL:    5 * time.Minute,
		ResetTokenTTL:   time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		FrontendBaseURL: "https://app.example.com",
	})
}

func strPtr(s string) *string { return &s }

func hashOf(t *testing.T, secret string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func liveCred(t *testing.T, userID, purpose, secret string) *domain.UserCredential {
	t.Helper()
	now := time.Now().UTC()
	return &domain.UserCredential{
		UserID:     userID,
		Purpose:    purpose,
		SecretHash: hashOf(t, secret),
		CreatedAt:  now,
		ExpiresAt:  now.Add(10 * time.Minute).Unix(),
	}
}

// --- IssueVerificationCode ---

func TestIssueVerificationCode_StoresHashNotPlaintext(t *testing.T) {
	cs := &mockCredentialStore{}
	ml := &mockMailer{}

	var stored *domain.UserCredential
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.UserCredential")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.UserCredential) }).
		Return(nil)

	svc := newService(cs, nil, nil, nil, ml, nil, nil)
	u := &domain.User{UserID: "u1", Email: strPtr("a@b.com")}
	plain, err := svc.IssueVerificationCode(context.Background(), u)

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), plain)
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, domain.PurposeVerify, stored.Purpose)
	assert.NotEqual(t, plain, stored.SecretHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte(plain)))

	wantExpiry := time.Now().Add(24 * time.Hour).Unix()
	assert.InDelta(t, wantExpiry, stored.ExpiresAt, 5)
}

// --- VerifyRegistration ---

func TestVerifyRegistration_BothHandles_ReturnsBadRequest(t *testing.T) {
	svc := newService(nil, nil, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		PhoneNumber:      strPtr("+15551234567"),
		VerificationCode: "123456",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestVerifyRegistration_UnknownAccount(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(nil, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("x@x.com"),
		VerificationCode: "123456",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestVerifyRegistration_NoCode_AlreadyVerified(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(nil, domain.ErrNotFound)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "123456",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyVerified))
}

func TestVerifyRegistration_NoCode_Unverified(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1"}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(nil, domain.ErrNotFound)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "123456",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoCodeOutstanding))
}

func TestVerifyRegistration_ExpiredCode_DeletesRecord(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1"}, nil)

	expired := liveCred(t, "u1", domain.PurposeVerify, "123456")
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(expired, nil)
	cs.On("Delete", mock.Anything, "u1", domain.PurposeVerify).Return(nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "123456", // correct, but too late
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCodeExpired))
	cs.AssertCalled(t, "Delete", mock.Anything, "u1", domain.PurposeVerify)
}

func TestVerifyRegistration_WrongCode_KeepsRecord(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1"}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(liveCred(t, "u1", domain.PurposeVerify, "123456"), nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "654321",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
	// The record survives a mismatch so the real code can still be used.
	cs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyRegistration_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	ps := &mockProfileStore{}
	ml := &mockMailer{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Username: "alice", Email: strPtr("a@b.com")}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(liveCred(t, "u1", domain.PurposeVerify, "123456"), nil)
	cs.On("Delete", mock.Anything, "u1", domain.PurposeVerify).Return(nil)

	var profile *domain.Profile
	ps.On("Put", mock.Anything, mock.AnythingOfType("*domain.Profile")).
		Run(func(args mock.Arguments) { profile = args.Get(1).(*domain.Profile) }).
		Return(nil)
	us.On("MarkVerified", mock.Anything, "u1", mock.AnythingOfType("string")).Return(nil)

	svc := newService(cs, us, nil, ps, ml, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "123456",
	})

	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "u1", profile.UserID)
	assert.Equal(t, "alice", profile.DisplayName)
	us.AssertCalled(t, "MarkVerified", mock.Anything, "u1", profile.ProfileID)
	cs.AssertCalled(t, "Delete", mock.Anything, "u1", domain.PurposeVerify)
}

func TestVerifyRegistration_CodeIsSingleUse(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)
	// The record is gone after the first successful verification.
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(nil, domain.ErrNotFound)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "123456",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyVerified))
}

// --- ResendVerificationCode ---

func TestResendVerificationCode_AlreadyVerified(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)

	svc := newService(nil, us, nil, nil, nil, nil, nil)
	_, err := svc.ResendVerificationCode(context.Background(), domain.HandleRequest{Email: strPtr("a@b.com")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAlreadyVerified))
}

func TestResendVerificationCode_ReplacesInPlace(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	ml := &mockMailer{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Email: strPtr("a@b.com")}, nil)

	var stored *domain.UserCredential
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.UserCredential")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.UserCredential) }).
		Return(nil)

	svc := newService(cs, us, nil, nil, ml, nil, nil)
	code, err := svc.ResendVerificationCode(context.Background(), domain.HandleRequest{Email: strPtr("a@b.com")})

	require.NoError(t, err)
	require.NotNil(t, stored)
	// One unconditional Put: the write itself is the replacement, with a
	// fresh expiry window.
	cs.AssertNumberOfCalls(t, "Put", 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte(code)))
	assert.InDelta(t, time.Now().Add(24*time.Hour).Unix(), stored.ExpiresAt, 5)
}

// --- Login ---

func TestLogin_BothHandles_ReturnsBadRequest(t *testing.T) {
	svc := newService(nil, nil, nil, nil, nil, nil, nil)
	_, err := svc.Login(context.Background(), LoginRequest{
		Email:       strPtr("a@b.com"),
		PhoneNumber: strPtr("+15551234567"),
		Password:    "pw",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestLogin_UnknownAccount_IndistinguishableFromBadPassword(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(nil, us, nil, nil, nil, nil, nil)
	_, err := svc.Login(context.Background(), LoginRequest{Email: strPtr("x@x.com"), Password: "pw"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestLogin_UnverifiedAccount(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{
		UserID:       "u1",
		PasswordHash: hashOf(t, "Secret-pw1"),
	}, nil)

	svc := newService(nil, us, nil, nil, nil, nil, nil)
	_, err := svc.Login(context.Background(), LoginRequest{Email: strPtr("a@b.com"), Password: "Secret-pw1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_WrongPassword(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{
		UserID:       "u1",
		Verified:     true,
		PasswordHash: hashOf(t, "Secret-pw1"),
	}, nil)

	svc := newService(nil, us, nil, nil, nil, nil, nil)
	_, err := svc.Login(context.Background(), LoginRequest{Email: strPtr("a@b.com"), Password: "wrong"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestLogin_HappyPath_IssuesShortLivedCode(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	ml := &mockMailer{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{
		UserID:       "u1",
		Verified:     true,
		Email:        strPtr("a@b.com"),
		PasswordHash: hashOf(t, "Secret-pw1"),
	}, nil)

	var stored *domain.UserCredential
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.UserCredential")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.UserCredential) }).
		Return(nil)

	svc := newService(cs, us, nil, nil, ml, nil, nil)
	code, err := svc.Login(context.Background(), LoginRequest{Email: strPtr("a@b.com"), Password: "Secret-pw1"})

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), code)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PurposeLogin, stored.Purpose)
	assert.InDelta(t, time.Now().Add(5*time.Minute).Unix(), stored.ExpiresAt, 5)
}

func TestLogin_SoftDeletedAccount_IsUnauthorized(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	deleted := time.Now().Add(-time.Hour)
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{
		UserID:       "u1",
		Verified:     true,
		Email:        strPtr("a@b.com"),
		PasswordHash: hashOf(t, "Secret-pw1"),
		DeletedAt:    &deleted,
	}, nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	_, err := svc.Login(context.Background(), LoginRequest{Email: strPtr("a@b.com"), Password: "Secret-pw1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	cs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestForgotPassword_SoftDeletedAccount_IsNotFound(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	deleted := time.Now().Add(-time.Hour)
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{
		UserID:    "u1",
		Email:     strPtr("a@b.com"),
		DeletedAt: &deleted,
	}, nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	_, err := svc.ForgotPassword(context.Background(), "a@b.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	cs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestVerifyRegistration_StoreFailure_IsNotALifecycleOutcome(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeVerify).Return(nil, errors.New("dynamo unavailable"))

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.VerifyRegistration(context.Background(), VerifyCodeRequest{
		Email:            strPtr("a@b.com"),
		VerificationCode: "123456",
	})
	require.Error(t, err)
	// A transient store failure must surface as such, not as a 4xx outcome.
	assert.False(t, errors.Is(err, domain.ErrAlreadyVerified))
	assert.False(t, errors.Is(err, domain.ErrNoCodeOutstanding))
}

func TestIssueVerificationCode_PhoneUser_NoSMSSenderConfigured(t *testing.T) {
	cs := &mockCredentialStore{}
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.UserCredential")).Return(nil)

	svc := NewService(ServiceDeps{
		CredentialRepo: cs,
		SMSSender:      nil, // SNS init failed at startup
		VerifyCodeTTL:  24 * time.Hour,
	})
	u := &domain.User{UserID: "u1", PhoneNumber: strPtr("+15551234567")}
	plain, err := svc.IssueVerificationCode(context.Background(), u)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), plain)
}

// --- VerifyLogin ---

func TestVerifyLogin_NoCodeOutstanding(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeLogin).Return(nil, domain.ErrNotFound)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	_, err := svc.VerifyLogin(context.Background(), VerifyLoginRequest{Email: strPtr("a@b.com"), AuthCode: "123456"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNoCodeOutstanding))
}

func TestVerifyLogin_ExpiredCode_DeletesRecord(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)

	expired := liveCred(t, "u1", domain.PurposeLogin, "123456")
	expired.ExpiresAt = time.Now().Add(-time.Second).Unix()
	cs.On("Get", mock.Anything, "u1", domain.PurposeLogin).Return(expired, nil)
	cs.On("Delete", mock.Anything, "u1", domain.PurposeLogin).Return(nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	_, err := svc.VerifyLogin(context.Background(), VerifyLoginRequest{Email: strPtr("a@b.com"), AuthCode: "123456"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCodeExpired))
	cs.AssertCalled(t, "Delete", mock.Anything, "u1", domain.PurposeLogin)
}

func TestVerifyLogin_WrongCode_KeepsRecord(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeLogin).Return(liveCred(t, "u1", domain.PurposeLogin, "123456"), nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	_, err := svc.VerifyLogin(context.Background(), VerifyLoginRequest{Email: strPtr("a@b.com"), AuthCode: "000000"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCode))
	cs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyLogin_HappyPath_CreatesSession(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	ss := &mockSessionStore{}
	jwt := &mockJWTSigner{}

	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true, Email: strPtr("a@b.com")}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeLogin).Return(liveCred(t, "u1", domain.PurposeLogin, "123456"), nil)
	cs.On("Delete", mock.Anything, "u1", domain.PurposeLogin).Return(nil)

	var sess *domain.Session
	ss.On("Put", mock.Anything, mock.AnythingOfType("*domain.Session")).
		Run(func(args mock.Arguments) { sess = args.Get(1).(*domain.Session) }).
		Return(nil)
	jwt.On("Sign", "u1", mock.AnythingOfType("string")).Return("signed-jwt", nil)

	svc := newService(cs, us, ss, nil, nil, nil, jwt)
	result, err := svc.VerifyLogin(context.Background(), VerifyLoginRequest{Email: strPtr("a@b.com"), AuthCode: "123456"})

	require.NoError(t, err)
	assert.Equal(t, "signed-jwt", result.Bearer)
	assert.NotEmpty(t, result.RefreshToken)
	require.NotNil(t, sess)
	assert.True(t, sess.Enable)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, result.RefreshToken, sess.RefreshToken)
	// Single use: consumed on success.
	cs.AssertCalled(t, "Delete", mock.Anything, "u1", domain.PurposeLogin)
}

func TestVerifyLogin_StoreFailure_IsNotALifecycleOutcome(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Verified: true}, nil)
	cs.On("Get", mock.Anything, "u1", domain.PurposeLogin).Return(nil, errors.New("dynamo unavailable"))

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	_, err := svc.VerifyLogin(context.Background(), VerifyLoginRequest{Email: strPtr("a@b.com"), AuthCode: "123456"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNoCodeOutstanding))
}

// --- ForgotPassword ---

func TestForgotPassword_UnknownEmail(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)

	svc := newService(nil, us, nil, nil, nil, nil, nil)
	_, err := svc.ForgotPassword(context.Background(), "x@x.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestForgotPassword_HappyPath_LinkCarriesToken(t *testing.T) {
	us := &mockUserStore{}
	cs := &mockCredentialStore{}
	ml := &mockMailer{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(&domain.User{UserID: "u1", Email: strPtr("a@b.com")}, nil)

	var stored *domain.UserCredential
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.UserCredential")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.UserCredential) }).
		Return(nil)

	svc := newService(cs, us, nil, nil, ml, nil, nil)
	link, err := svc.ForgotPassword(context.Background(), "a@b.com")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://app.example.com/reset-password?token="))
	assert.Contains(t, link, "userId=u1")

	require.NotNil(t, stored)
	assert.Equal(t, domain.PurposeReset, stored.Purpose)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), stored.ExpiresAt, 5)

	// The token in the link must match the stored hash.
	token := strings.TrimSuffix(strings.TrimPrefix(link, "https://app.example.com/reset-password?token="), "&userId=u1")
	assert.Len(t, token, 64) // 32 random bytes, hex-encoded
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte(token)))
}

// --- ResetPassword ---

func TestResetPassword_NoTokenOutstanding(t *testing.T) {
	cs := &mockCredentialStore{}
	cs.On("Get", mock.Anything, "u1", domain.PurposeReset).Return(nil, domain.ErrNotFound)

	svc := newService(cs, nil, nil, nil, nil, nil, nil)
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{UserID: "u1", Token: "tok", Password: "Abcdefg1!"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestResetPassword_StoreFailure_IsNotALifecycleOutcome(t *testing.T) {
	cs := &mockCredentialStore{}
	cs.On("Get", mock.Anything, "u1", domain.PurposeReset).Return(nil, errors.New("dynamo unavailable"))

	svc := newService(cs, nil, nil, nil, nil, nil, nil)
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{UserID: "u1", Token: "tok", Password: "Abcdefg1!"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidToken))
}

func TestResetPassword_TamperedToken(t *testing.T) {
	cs := &mockCredentialStore{}
	cs.On("Get", mock.Anything, "u1", domain.PurposeReset).Return(liveCred(t, "u1", domain.PurposeReset, "real-token"), nil)

	svc := newService(cs, nil, nil, nil, nil, nil, nil)
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{UserID: "u1", Token: "forged-token", Password: "Abcdefg1!"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))
	cs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_ExpiredToken_DeletesRecord(t *testing.T) {
	cs := &mockCredentialStore{}
	expired := liveCred(t, "u1", domain.PurposeReset, "tok")
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	cs.On("Get", mock.Anything, "u1", domain.PurposeReset).Return(expired, nil)
	cs.On("Delete", mock.Anything, "u1", domain.PurposeReset).Return(nil)

	svc := newService(cs, nil, nil, nil, nil, nil, nil)
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{UserID: "u1", Token: "tok", Password: "Abcdefg1!"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCodeExpired))
	cs.AssertCalled(t, "Delete", mock.Anything, "u1", domain.PurposeReset)
}

func TestResetPassword_WeakPassword_TokenSurvives(t *testing.T) {
	cs := &mockCredentialStore{}
	us := &mockUserStore{}
	cs.On("Get", mock.Anything, "u1", domain.PurposeReset).Return(liveCred(t, "u1", domain.PurposeReset, "tok"), nil)

	svc := newService(cs, us, nil, nil, nil, nil, nil)
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{UserID: "u1", Token: "tok", Password: "abcdefg1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrWeakPassword))
	// A retry with a stronger password must still find the token.
	cs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword_HappyPath(t *testing.T) {
	cs := &mockCredentialStore{}
	us := &mockUserStore{}
	ml := &mockMailer{}
	cs.On("Get", mock.Anything, "u1", domain.PurposeReset).Return(liveCred(t, "u1", domain.PurposeReset, "tok"), nil)
	cs.On("Delete", mock.Anything, "u1", domain.PurposeReset).Return(nil)

	var updates map[string]interface{}
	us.On("Update", mock.Anything, "u1", mock.AnythingOfType("map[string]interface {}")).
		Run(func(args mock.Arguments) { updates = args.Get(2).(map[string]interface{}) }).
		Return(nil)
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Email: strPtr("a@b.com")}, nil)

	svc := newService(cs, us, nil, nil, ml, nil, nil)
	err := svc.ResetPassword(context.Background(), ResetPasswordRequest{UserID: "u1", Token: "tok", Password: "Abcdefg1!"})

	require.NoError(t, err)
	require.NotNil(t, updates)
	newHash, ok := updates["password_hash"].(string)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(newHash), []byte("Abcdefg1!")))
	cs.AssertCalled(t, "Delete", mock.Anything, "u1", domain.PurposeReset)
}
