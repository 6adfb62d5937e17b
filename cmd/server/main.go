package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/KrishmiH/supermarket-pos-system/internal/cache"
	"github.com/KrishmiH/supermarket-pos-system/internal/config"
	"github.com/KrishmiH/supermarket-pos-system/internal/domain"
	"github.com/KrishmiH/supermarket-pos-system/internal/httpapi"
	"github.com/KrishmiH/supermarket-pos-system/internal/logging"
	"github.com/KrishmiH/supermarket-pos-system/internal/service"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	boltstore "github.com/KrishmiH/supermarket-pos-system/internal/store/bolt"
	"github.com/KrishmiH/supermarket-pos-system/internal/store/memory"
	pgstore "github.com/KrishmiH/supermarket-pos-system/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("invalid logging configuration: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}

	idem := cache.IdempotencyStore(cache.NewMemoryIdempotencyStore())
	if cfg.RedisAddr != "" {
		redisStore := cache.NewRedisIdempotencyStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisStore.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process idempotency keys", zap.Error(err))
		} else {
			idem = redisStore
			closers = append(closers, redisStore.Close)
			logger.Info("idempotency: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("idempotency: in-process")
	}

	svc := service.New(repo, service.Options{
		Idempotency:    idem,
		Logger:         logger,
		DefaultTaxRate: &cfg.DefaultTaxRate,
		RecentSalesMax: cfg.RecentSalesMax,
	})
	auth := httpapi.NewAuthManager(httpapi.AuthConfig{
		Secret:   cfg.AuthSecret,
		TokenTTL: cfg.AccessTokenTTL(),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, repo, logger)

	if cfg.SeedUsers {
		seeds, defaulted := seedAccounts(cfg)
		created, err := auth.EnsureSeedUsers(ctx, seeds)
		if err != nil {
			logger.Fatal("failed to seed user accounts", zap.Error(err))
		}
		if created > 0 && len(defaulted) > 0 {
			logger.Warn("seeded accounts use default passwords; change them before going live", zap.Strings("usernames", defaulted))
		}
	}

	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// openRepository picks postgres, then a bolt file, then the seeded in-memory
// catalog. A configured but unreachable postgres is fatal.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, []func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("apply postgres schema: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, []func() error{pg.Close}, nil
	case cfg.BoltPath != "":
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt file %s: %w", cfg.BoltPath, err)
		}
		logger.Info("repository: bolt", zap.String("path", cfg.BoltPath))
		return db, []func() error{db.Close}, nil
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

// seedAccounts returns the bootstrap accounts and the usernames that fell
// back to a built-in password.
func seedAccounts(cfg config.Config) ([]domain.UserCreateRequest, []string) {
	entries := []struct {
		username string
		role     string
		password string
		fallback string
	}{
		{"admin", domain.RoleAdmin, cfg.SeedAdminPassword, "admin123"},
		{"manager", domain.RoleManager, cfg.SeedManagerPassword, "manager123"},
		{"cashier", domain.RoleCashier, cfg.SeedCashierPassword, "cashier123"},
	}

	seeds := make([]domain.UserCreateRequest, 0, len(entries))
	defaulted := make([]string, 0, len(entries))
	for _, e := range entries {
		password := e.password
		if password == "" {
			password = e.fallback
			defaulted = append(defaulted, e.username)
		}
		seeds = append(seeds, domain.UserCreateRequest{Username: e.username, Password: password, Role: e.role})
	}
	return seeds, defaulted
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if !cfg.IsDevelopment() && cfg.SeedUsers {
		for name, password := range map[string]string{
			"SEED_ADMIN_PASSWORD":   cfg.SeedAdminPassword,
			"SEED_MANAGER_PASSWORD": cfg.SeedManagerPassword,
			"SEED_CASHIER_PASSWORD": cfg.SeedCashierPassword,
		} {
			if len(password) < 8 {
				return fmt.Errorf("%s must be at least 8 characters outside development", name)
			}
		}
	}
	return nil
}
