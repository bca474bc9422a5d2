package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stewardhq/steward/internal/app"
	"github.com/stewardhq/steward/internal/identity"
	"github.com/stewardhq/steward/internal/observability"
	"github.com/stewardhq/steward/internal/permsets"
	"github.com/stewardhq/steward/internal/platform/cache"
	"github.com/stewardhq/steward/internal/platform/db"
	"github.com/stewardhq/steward/internal/profiles"
	"github.com/stewardhq/steward/internal/roles"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	idpClient := identity.NewClient(identity.Config{
		BaseURL:      cfg.IDPBaseURL,
		Realm:        cfg.IDPRealm,
		ClientID:     cfg.IDPClientID,
		ClientSecret: cfg.IDPClientSecret,
		Timeout:      cfg.IDPTimeout,
	}, redisClient)
	identityService := identity.NewService(idpClient)
	identityHandler := identity.NewHandler(logger, identityService)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo)
	rolesHandler := roles.NewHandler(logger, rolesService)

	profilesRepo := profiles.NewRepository(pool)
	profilesService := profiles.NewService(profilesRepo)
	profilesHandler := profiles.NewHandler(logger, profilesService)

	permsetsRepo := permsets.NewRepository(pool)
	permsetsService := permsets.NewService(permsetsRepo)
	permsetsHandler := permsets.NewHandler(logger, permsetsService)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		RolesHandler:          rolesHandler,
		ProfilesHandler:       profilesHandler,
		PermissionSetsHandler: permsetsHandler,
		UsersHandler:          identityHandler,
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
