package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ALLOWED_ORIGIN", "DATABASE_URL", "DATA_PATH", "BACKUP_DIR",
		"REDIS_ADDR", "REDIS_DB", "AUTH_SECRET", "ACCESS_TOKEN_TTL_MINUTES",
		"ADMIN_CODE", "ALLOW_PURCHASE_OVERDRAW",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.BackupDir != "backups" {
		t.Fatalf("expected default backup dir, got %q", cfg.BackupDir)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token TTL 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.AllowPurchaseOverdraw {
		t.Fatalf("overdraw must default to off")
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGIN", "https://pos.example.com")
	t.Setenv("BACKUP_DIR", "/var/backups/pos")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")
	t.Setenv("ALLOW_PURCHASE_OVERDRAW", "true")
	t.Setenv("ADMIN_CODE", "  480032  ")

	cfg := Load()
	if cfg.Port != "9090" || cfg.AllowedOrigin != "https://pos.example.com" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.AccessTokenTTLMinutes != 60 {
		t.Fatalf("expected token TTL 60, got %d", cfg.AccessTokenTTLMinutes)
	}
	if !cfg.AllowPurchaseOverdraw {
		t.Fatalf("expected overdraw enabled")
	}
	if cfg.AdminCode != "480032" {
		t.Fatalf("admin code must be trimmed, got %q", cfg.AdminCode)
	}
}

func TestLoadBadTTLFallsBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "not-a-number")
	if cfg := Load(); cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback TTL, got %d", cfg.AccessTokenTTLMinutes)
	}
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	if cfg := Load(); cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback TTL for negative value, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", " t "}
	for _, raw := range truthy {
		if !parseBool(raw) {
			t.Fatalf("expected %q to parse true", raw)
		}
	}
	falsy := []string{"", "0", "false", "yes", "nonsense"}
	for _, raw := range falsy {
		if parseBool(raw) {
			t.Fatalf("expected %q to parse false", raw)
		}
	}
}
