package authorization

import (
	"context"
	"testing"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *AccountStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Account{}))
	return &AccountStore{db: db}
}

func TestAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &Account{Username: "admin", PasswordHash: string(hash), Role: RoleAdmin}))

	account, err := authenticate(ctx, store, "admin", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "admin", account.Username)
	assert.Equal(t, RoleAdmin, account.Role)

	_, err = authenticate(ctx, store, "admin", "wrong")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)

	_, err = authenticate(ctx, store, "nobody", "secret-pass")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)

	_, err = authenticate(ctx, store, "  ", "")
	assert.ErrorIs(t, err, jwt.ErrMissingLoginValues)
}

func TestSeedAdminAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Setenv("ADMIN_USERNAME", "boss")
	t.Setenv("ADMIN_PASSWORD", "boss-pass-123")

	require.NoError(t, seedAdminAccount(ctx, store))

	account, err := store.FindByUsername(ctx, "boss")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, account.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte("boss-pass-123")))

	// 重复种子不重复建号。
	require.NoError(t, seedAdminAccount(ctx, store))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSeedAdminAccountWithoutPassword(t *testing.T) {
	store := newTestStore(t)

	t.Setenv("ADMIN_USERNAME", "boss")
	t.Setenv("ADMIN_PASSWORD", "")

	require.NoError(t, seedAdminAccount(context.Background(), store))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCaptchaStore(t *testing.T) {
	store := NewCaptchaStore(time.Minute)

	challenge := store.Issue()
	require.NotEmpty(t, challenge.ID)
	assert.Contains(t, challenge.ImageBase64, "data:image/png;base64,")

	assert.False(t, store.Verify(challenge.ID, "000000"))
	assert.False(t, store.Verify("", "123"))
	assert.False(t, store.Verify(challenge.ID, " "))

	// 未配置验证码时直接放行。
	var disabled *CaptchaStore
	assert.True(t, disabled.Verify("any", "any"))
}
