package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/redmonkez12/go-session-auth/docs" // Swagger docs (generated)
	"github.com/redmonkez12/go-session-auth/internal/app"
	"github.com/redmonkez12/go-session-auth/internal/auth"
	"github.com/redmonkez12/go-session-auth/internal/config"
	httpServer "github.com/redmonkez12/go-session-auth/internal/http"
	"github.com/redmonkez12/go-session-auth/internal/logging"
)

// @title           Session Auth API
// @version         1.0
// @description     Email and password authentication with server-side sessions and password reset by email.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey SessionCookie
// @in cookie
// @name auth_session

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	authHandler := auth.NewHandler(application.AuthService, cfg.Auth.ConcealUnknownEmail)
	authMiddleware := auth.NewMiddleware(application.AuthService)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger, application.DB)

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
