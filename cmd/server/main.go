package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmapos/backend/internal/cache"
	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/lock"
	"pharmapos/backend/internal/logging"
	"pharmapos/backend/internal/service"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/store/memory"
	pgstore "pharmapos/backend/internal/store/postgres"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	log := logging.Setup(cfg.LogLevel, os.Stdout)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			if err := migrateUp(cfg.DatabaseURL); err != nil {
				log.Fatalf("schema migration failed: %v", err)
			}
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	var (
		locker lock.Locker             = lock.Noop{}
		counts cache.ExpiryCountsCache = cache.NoopExpiryCountsCache{}
	)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisExpiryCountsCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warnf("redis unavailable (%v), using noop cache and locks", err)
			_ = client.Close()
		} else {
			counts = redisCache
			locker = lock.NewRedis(client, time.Duration(cfg.LockTTLSeconds)*time.Second)
			closers = append(closers, client.Close)
			log.Info("cache and locks: redis")
		}
	} else {
		log.Info("cache and locks: noop")
	}

	svc := service.New(repo, locker, counts, service.Options{
		PhoneRegion:       cfg.PhoneRegion,
		LowStockThreshold: cfg.LowStockThreshold,
		ExpiryCacheTTL:    time.Duration(cfg.ExpiryCacheSeconds) * time.Second,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("pharmacy backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Errorf("close error: %v", err)
		}
	}

	log.Info("server stopped")
}

func migrateUp(databaseURL string) error {
	migrator, err := pgstore.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
