// Package app wires configuration into stores and the auth service. It is
// shared by the API server and the authctl maintenance CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-session-auth/internal/auth"
	"github.com/redmonkez12/go-session-auth/internal/config"
	"github.com/redmonkez12/go-session-auth/internal/database"
	"github.com/redmonkez12/go-session-auth/internal/email"
	"github.com/redmonkez12/go-session-auth/internal/logging"
	"github.com/redmonkez12/go-session-auth/internal/user"
)

// App holds the long-lived dependencies of the process
type App struct {
	Config      *config.Config
	Logger      *logging.Logger
	DB          *bun.DB
	Redis       *redis.Client // nil unless AUTH_STORE_BACKEND=redis
	AuthService *auth.Service
}

// New connects to the configured stores and builds the auth service
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.ConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var (
		sessionRepo       auth.SessionRepository
		passwordResetRepo auth.PasswordResetRepository
	)

	switch cfg.Auth.StoreBackend {
	case config.BackendRedis:
		redisClient, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		a.Redis = redisClient
		sessionRepo = auth.NewSessionRedisRepository(redisClient)
		passwordResetRepo = auth.NewPasswordResetRedisRepository(redisClient)
	default:
		sessionRepo = auth.NewSessionDBRepository(db)
		passwordResetRepo = auth.NewPasswordResetDBRepository(db)
	}

	var sealer auth.CookieSealer
	if len(cfg.Auth.SessionCookieKey) > 0 {
		pasetoSealer, err := auth.NewPasetoSealer(cfg.Auth.SessionCookieKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize cookie sealer: %w", err)
		}
		sealer = pasetoSealer
	}

	cookieCfg := auth.DefaultCookieConfig(!cfg.Server.IsDevelopment())
	cookieCfg.Name = cfg.Auth.SessionCookieName
	sessions := auth.NewSessionManager(sessionRepo, cfg.Auth.SessionDuration, cookieCfg, sealer)

	hasher := auth.NewArgon2Hasher(auth.Argon2Params{
		Memory:      cfg.Auth.Argon2Memory,
		Iterations:  cfg.Auth.Argon2Time,
		Parallelism: cfg.Auth.Argon2Threads,
		SaltLength:  auth.DefaultArgon2Params.SaltLength,
		KeyLength:   auth.DefaultArgon2Params.KeyLength,
	})

	a.AuthService = auth.NewService(
		user.NewRepository(db),
		sessions,
		passwordResetRepo,
		hasher,
		newEmailSender(cfg.Email, cfg.Auth.ResetTokenDuration),
		logger,
		cfg.Email.BaseURL,
		cfg.Auth.ResetTokenDuration,
	)

	logger.Info("auth service ready",
		"db_driver", cfg.Database.Driver,
		"store_backend", cfg.Auth.StoreBackend,
		"email_provider", cfg.Email.Provider,
		"sealed_cookies", sealer != nil,
	)

	return a, nil
}

// Close releases the store connections
func (a *App) Close() error {
	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newEmailSender(cfg config.EmailConfig, linkValidFor time.Duration) auth.EmailSender {
	if cfg.Provider == config.EmailProviderSendGrid {
		return email.NewSendGridService(cfg.SendGridAPIKey, cfg.FromAddress, cfg.FromName, linkValidFor)
	}
	return email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromAddress, cfg.FromName, linkValidFor)
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
