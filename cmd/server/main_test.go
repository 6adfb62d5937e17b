package main

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/KrishmiH/supermarket-pos-system/internal/config"
	"github.com/KrishmiH/supermarket-pos-system/internal/store"
	"github.com/KrishmiH/supermarket-pos-system/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", AppEnv: "development"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AppEnv: "development", SeedUsers: true})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRequiresSeedPasswordsInProduction(t *testing.T) {
	cfg := config.Config{AuthSecret: strongSecret, AppEnv: "production", SeedUsers: true, SeedAdminPassword: "long-enough-1"}
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected missing seed passwords to be rejected in production")
	}

	cfg.SeedUsers = false
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected production config without seeding to pass, got %v", err)
	}
}

func TestSeedAccountsReportsDefaultedPasswords(t *testing.T) {
	seeds, defaulted := seedAccounts(config.Config{SeedManagerPassword: "m4nager-pass"})
	if len(seeds) != 3 {
		t.Fatalf("expected three seed accounts, got %d", len(seeds))
	}
	if seeds[1].Password != "m4nager-pass" {
		t.Fatalf("expected configured manager password, got %q", seeds[1].Password)
	}
	if len(defaulted) != 2 || defaulted[0] != "admin" || defaulted[1] != "cashier" {
		t.Fatalf("unexpected defaulted accounts %v", defaulted)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("expected no closers for memory store")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected in-memory repository, got %T", repo)
	}
}

func TestOpenRepositoryUsesBoltFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.db")
	repo, closers, err := openRepository(context.Background(), config.Config{BoltPath: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}()
	if _, ok := repo.(store.Transactor); !ok {
		t.Fatalf("expected bolt repository to support transactions, got %T", repo)
	}
}
