package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("RECONCILE_INTERVAL", "")
	t.Setenv("SITE_URL", "https://wikits.example/")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("Port: want=8080 got=%s", cfg.Port)
	}
	if cfg.IsProduction() {
		t.Fatalf("IsProduction: want=false for default env")
	}
	if cfg.ReconcileInterval != 10*time.Minute {
		t.Fatalf("ReconcileInterval: want=10m got=%s", cfg.ReconcileInterval)
	}
	if cfg.SiteURL != "https://wikits.example" {
		t.Fatalf("SiteURL: trailing slash not trimmed: %s", cfg.SiteURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("RECONCILE_INTERVAL", "90")
	t.Setenv("ADMIN_USER_IDS", "user_a, user_b,,")

	cfg := Load()
	if !cfg.IsProduction() {
		t.Fatalf("IsProduction: want=true")
	}
	if cfg.ReconcileInterval != 90*time.Second {
		t.Fatalf("ReconcileInterval: want=90s got=%s", cfg.ReconcileInterval)
	}
	if len(cfg.AdminUserIDs) != 2 || !cfg.IsAdminID("user_b") {
		t.Fatalf("AdminUserIDs: got=%v", cfg.AdminUserIDs)
	}
	if cfg.IsAdminID("user_c") {
		t.Fatalf("IsAdminID: user_c should not be admin")
	}
}
