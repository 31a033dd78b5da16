package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/guidexpert/counsellor-api/internal/models"
	appErrors "github.com/guidexpert/counsellor-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken

	created          []*models.User
	lastLoginUpdated bool
	revokedAllFor    []string
	passwordUpdates  map[string]string
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{
		users:           make(map[string]*models.User),
		refreshTokens:   make(map[string]*models.RefreshToken),
		passwordUpdates: make(map[string]string),
	}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated"
	}
	m.users[user.ID] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwordUpdates[id] = passwordHash
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = append(m.revokedAllFor, userID)
	for _, rt := range m.refreshTokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func counsellorFixture(t *testing.T) *models.User {
	return &models.User{
		ID:           "u1",
		Email:        "meera@guidexpert.in",
		PasswordHash: hashForTest(t, "secret-pass-1"),
		FullName:     "Meera Iyer",
		Role:         models.RoleCounsellor,
		Active:       true,
	}
}

func newAuthServiceForTest(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "counsellor-api-test",
	})
}

func TestAuthServiceLogin(t *testing.T) {
	repo := newMockAuthRepo(counsellorFixture(t))
	svc := newAuthServiceForTest(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "meera@guidexpert.in",
		Password: "secret-pass-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.ID)
	assert.True(t, repo.lastLoginUpdated)
	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleCounsellor, claims.Role)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	user := counsellorFixture(t)
	repo := newMockAuthRepo(user)
	svc := newAuthServiceForTest(repo)
	ctx := context.Background()

	_, err := svc.Login(ctx, models.LoginRequest{Email: "meera@guidexpert.in", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "nobody@guidexpert.in", Password: "secret-pass-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code, "unknown email must look like bad credentials")

	user.Active = false
	_, err = svc.Login(ctx, models.LoginRequest{Email: "meera@guidexpert.in", Password: "secret-pass-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo(counsellorFixture(t))
	svc := newAuthServiceForTest(repo)
	ctx := context.Background()

	login, err := svc.Login(ctx, models.LoginRequest{Email: "meera@guidexpert.in", Password: "secret-pass-1"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// each refresh token works at most once
	_, err = svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo := newMockAuthRepo(counsellorFixture(t))
	svc := newAuthServiceForTest(repo)

	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := newMockAuthRepo(counsellorFixture(t))
	svc := newAuthServiceForTest(repo)
	ctx := context.Background()

	login, err := svc.Login(ctx, models.LoginRequest{Email: "meera@guidexpert.in", Password: "secret-pass-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken, "u1"))
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)

	err = svc.Logout(ctx, login.RefreshToken, "someone-else")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRegister(t *testing.T) {
	repo := newMockAuthRepo(counsellorFixture(t))
	svc := newAuthServiceForTest(repo)
	ctx := context.Background()

	info, err := svc.Register(ctx, RegisterUserRequest{
		Email:    "rahul@guidexpert.in",
		Password: "another-pass-1",
		FullName: "Rahul Shetty",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCounsellor, info.Role, "role defaults to counsellor")
	require.Len(t, repo.created, 1)
	assert.True(t, repo.created[0].Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.created[0].PasswordHash), []byte("another-pass-1")))

	_, err = svc.Register(ctx, RegisterUserRequest{
		Email:    "meera@guidexpert.in",
		Password: "another-pass-1",
		FullName: "Duplicate",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Register(ctx, RegisterUserRequest{
		Email:    "tiny@guidexpert.in",
		Password: "short",
		FullName: "Too Short",
	})
	require.Error(t, err)

	_, err = svc.Register(ctx, RegisterUserRequest{
		Email:    "odd@guidexpert.in",
		Password: "another-pass-1",
		FullName: "Odd Role",
		Role:     models.UserRole("SUPERUSER"),
	})
	require.Error(t, err)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newMockAuthRepo(counsellorFixture(t))
	svc := newAuthServiceForTest(repo)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, "u1", ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "brand-new-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.passwordUpdates)

	err = svc.ChangePassword(ctx, "u1", ChangePasswordRequest{
		CurrentPassword: "secret-pass-1",
		NewPassword:     "brand-new-pass",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u1"].PasswordHash), []byte("brand-new-pass")))
	assert.Equal(t, []string{"u1"}, repo.revokedAllFor, "other sessions are revoked")

	// the new password works for login
	_, err = svc.Login(ctx, models.LoginRequest{Email: "meera@guidexpert.in", Password: "brand-new-pass"})
	require.NoError(t, err)
}
