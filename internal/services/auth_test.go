package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"shijian-backend/internal/middleware"
	"shijian-backend/internal/models"
)

type memoryUsers struct {
	byID map[uuid.UUID]*models.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: make(map[uuid.UUID]*models.User)}
}

func (m *memoryUsers) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New()
	user.IsActive = true
	m.byID[user.ID] = user
	return nil
}

func (m *memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUsers) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error { return nil }

func newTestAuth(t *testing.T) (*AuthService, *memoryUsers) {
	t.Helper()
	_, client := newRedis(t)
	users := newMemoryUsers()
	svc := NewAuthService(users, client, middleware.NewJWTAuth("test-secret"))
	svc.bcryptCost = bcrypt.MinCost
	return svc, users
}

func TestAuthService_RegisterValidates(t *testing.T) {
	svc, _ := newTestAuth(t)

	_, _, err := svc.Register(context.Background(), models.RegisterRequest{Email: "bad", Password: "short"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Contains(t, validation.Fields, "username")
	require.Contains(t, validation.Fields, "email")
	require.Contains(t, validation.Fields, "password")
}

func TestAuthService_RegisterLoginRefreshLogout(t *testing.T) {
	svc, _ := newTestAuth(t)
	ctx := context.Background()

	user, tokens, err := svc.Register(ctx, models.RegisterRequest{Username: "libai", Email: " LiBai@Tang.cn ", Password: "moonlight1"})
	require.NoError(t, err)
	require.Equal(t, "libai@tang.cn", user.Email)
	require.NotEmpty(t, tokens.AccessToken)
	require.Equal(t, 900, tokens.ExpiresIn)

	_, _, err = svc.Register(ctx, models.RegisterRequest{Username: "other", Email: "libai@tang.cn", Password: "moonlight1"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = svc.Login(ctx, models.LoginRequest{Email: "libai@tang.cn", Password: "wrong-pass1"})
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)

	loginTokens, err := svc.Login(ctx, models.LoginRequest{Email: "libai@tang.cn", Password: "moonlight1"})
	require.NoError(t, err)

	rotated, err := svc.RefreshToken(ctx, loginTokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, loginTokens.RefreshToken, rotated.RefreshToken)

	_, err = svc.RefreshToken(ctx, loginTokens.RefreshToken)
	require.ErrorAs(t, err, &unauthorized)

	require.NoError(t, svc.Logout(ctx, rotated.RefreshToken))
	_, err = svc.RefreshToken(ctx, rotated.RefreshToken)
	require.ErrorAs(t, err, &unauthorized)
}

func TestAuthService_LoginRejectsInactive(t *testing.T) {
	svc, users := newTestAuth(t)
	ctx := context.Background()

	user, _, err := svc.Register(ctx, models.RegisterRequest{Username: "dufu", Email: "dufu@tang.cn", Password: "spring2024"})
	require.NoError(t, err)
	users.byID[user.ID].IsActive = false

	_, err = svc.Login(ctx, models.LoginRequest{Email: "dufu@tang.cn", Password: "spring2024"})
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
}

func TestValidatePassword(t *testing.T) {
	require.Error(t, validatePassword("short1"))
	require.Error(t, validatePassword("longenoughbutnodigit"))
	require.NoError(t, validatePassword("longenough1"))
}
