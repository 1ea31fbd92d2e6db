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

	"saldopos/backend/internal/backup"
	"saldopos/backend/internal/cache"
	"saldopos/backend/internal/config"
	"saldopos/backend/internal/httpapi"
	"saldopos/backend/internal/service"
	"saldopos/backend/internal/store"
	filestore "saldopos/backend/internal/store/file"
	"saldopos/backend/internal/store/memory"
	pgstore "saldopos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
		if err := seedStaffIfEmpty(ctx, pg); err != nil {
			log.Fatalf("seed staff accounts: %v", err)
		}
	case cfg.DataPath != "":
		fs, err := filestore.Open(ctx, cfg.DataPath)
		if err != nil {
			log.Fatalf("cannot open store at %s: %v", cfg.DataPath, err)
		}
		repo = fs
		log.Printf("repository: file (%s)", cfg.DataPath)
	default:
		repo = memory.NewSeeded()
		log.Println("repository: in-memory (seeded demo data)")
	}

	statsCache := cache.StatsCache(cache.NoopStatsCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisStatsCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			statsCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, statsCache, service.ResolveOverdrawPolicy(ctx, repo, cfg.AllowPurchaseOverdraw))
	backups := backup.NewManager(repo, cfg.BackupDir)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.AdminCode, repo)
	api := httpapi.New(svc, auth, backups, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// seedStaffIfEmpty creates the initial staff accounts on a fresh database so
// login works on first boot, matching what the file and memory stores do.
func seedStaffIfEmpty(ctx context.Context, repo store.Repository) error {
	existing, err := repo.ListStaff(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, acct := range memory.SeedStaffAccounts() {
		if err := repo.CreateStaff(ctx, acct); err != nil {
			return err
		}
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminCode != "" && len(cfg.AdminCode) < 6 {
		return fmt.Errorf("ADMIN_CODE must be at least 6 characters when set")
	}
	return nil
}
