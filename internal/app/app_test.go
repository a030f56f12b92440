package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-session-auth/internal/auth"
	"github.com/redmonkez12/go-session-auth/internal/config"
	"github.com/redmonkez12/go-session-auth/internal/email"
	"github.com/redmonkez12/go-session-auth/internal/logging"
)

func sqliteConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Env: "dev"},
		Database: config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			SQLitePath:   filepath.Join(t.TempDir(), "auth.db"),
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Auth: config.AuthConfig{
			StoreBackend:       backend,
			SessionDuration:    time.Hour,
			SessionCookieName:  "sid",
			ResetTokenDuration: 2 * time.Hour,
			Argon2Memory:       1024,
			Argon2Time:         1,
			Argon2Threads:      1,
		},
		Email: config.EmailConfig{Provider: config.EmailProviderSMTP, BaseURL: "http://localhost:3000"},
	}
}

func TestNew_DatabaseBackend(t *testing.T) {
	cfg := sqliteConfig(t, config.BackendDatabase)
	ctx := context.Background()

	a, err := New(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Nil(t, a.Redis)

	result, err := a.AuthService.Register(ctx, auth.RegisterInput{FullName: "Jane Doe", Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "sid", result.Cookie.Name)
	assert.False(t, result.Cookie.Attributes.Secure)

	purged, err := a.AuthService.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged.Sessions)
}

func TestNew_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t, config.BackendRedis)
	cfg.Redis = config.RedisConfig{Host: mr.Host(), Port: mr.Port()}
	ctx := context.Background()

	a, err := New(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NotNil(t, a.Redis)

	result, err := a.AuthService.Register(ctx, auth.RegisterInput{FullName: "Jane Doe", Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("session:"+result.Session.ID))
}

func TestNew_SealedCookies(t *testing.T) {
	cfg := sqliteConfig(t, config.BackendDatabase)
	cfg.Auth.SessionCookieKey = []byte("0123456789abcdef0123456789abcdef")
	ctx := context.Background()

	a, err := New(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	result, err := a.AuthService.Register(ctx, auth.RegisterInput{FullName: "Jane Doe", Email: "jane@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEqual(t, result.Session.ID, result.Cookie.Value)
	assert.Contains(t, result.Cookie.Value, "v4.local.")
}

func TestNew_RejectsShortCookieKey(t *testing.T) {
	cfg := sqliteConfig(t, config.BackendDatabase)
	cfg.Auth.SessionCookieKey = []byte("too-short")

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestNewEmailSender(t *testing.T) {
	smtpSender := newEmailSender(config.EmailConfig{Provider: config.EmailProviderSMTP}, time.Hour)
	assert.IsType(t, &email.Service{}, smtpSender)

	sgSender := newEmailSender(config.EmailConfig{Provider: config.EmailProviderSendGrid, SendGridAPIKey: "key"}, time.Hour)
	assert.IsType(t, &email.SendGridService{}, sgSender)
}
