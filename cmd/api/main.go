package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/securecloud/api/internal/admin"
	"github.com/securecloud/api/internal/blob"
	"github.com/securecloud/api/internal/config"
	"github.com/securecloud/api/internal/file"
	"github.com/securecloud/api/internal/identity"
	"github.com/securecloud/api/internal/logger"
	"github.com/securecloud/api/internal/quota"
	"github.com/securecloud/api/internal/reconcile"
	"github.com/securecloud/api/internal/server"
	"github.com/securecloud/api/internal/storage"
	"github.com/securecloud/api/internal/user"
)

func main() {
	_ = godotenv.Load()

	logg, err := logger.Init()
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer logg.Sync()

	cfg, err := config.Load()
	if err != nil {
		logg.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	if err := storage.Migrate(cfg.Postgres); err != nil {
		logg.Fatal("apply migrations", zap.Error(err))
	}

	blobStore, err := blob.NewStore(cfg.Storage.RootDir, logg)
	if err != nil {
		logg.Fatal("init blob store", zap.Error(err))
	}

	identityClient, err := identity.NewClient(ctx, cfg.Keycloak, logg)
	if err != nil {
		logg.Fatal("init identity client", zap.Error(err))
	}

	fileRepo := file.NewRepository(dbPool)
	userRepo := user.NewRepository(dbPool)

	quotaService := quota.NewService(userRepo, blobStore, cfg.Quota, logg)
	fileService := file.NewService(fileRepo, blobStore, quotaService, logg)
	userService := user.NewService(userRepo, fileRepo, blobStore, identityClient, cfg.Quota.DefaultBytes, logg)
	reconciler := reconcile.NewService(fileRepo, blobStore, logg)
	adminHandler := admin.NewHandler(identityClient, userService, blobStore, reconciler, cfg.Quota.DefaultBytes, logg)

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          dbPool,
		Blobs:       blobStore,
		Identity:    identityClient,
		FileService: fileService,
		UserService: userService,
		Admin:       adminHandler,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("personal cloud API listening", zap.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
