package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("BOOTSTRAP_ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.BootstrapAdminPassword != "" {
		t.Fatalf("expected empty BOOTSTRAP_ADMIN_PASSWORD when unset, got %q", cfg.BootstrapAdminPassword)
	}
}

func TestLoadLeavesLoggerPresetsAlone(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_ENCODING", "")

	cfg := Load()
	if !cfg.Logger.IsDevelopment {
		t.Fatalf("expected development logger")
	}
	if cfg.Logger.Level != "" || cfg.Logger.Encoding != "" {
		t.Fatalf("expected unset level and encoding, got %q/%q", cfg.Logger.Level, cfg.Logger.Encoding)
	}

	t.Setenv("LOG_LEVEL", " warn ")
	if got := Load().Logger.Level; got != "warn" {
		t.Fatalf("expected trimmed override warn, got %q", got)
	}
}

func TestLocationDefaultsToMinusFiveHours(t *testing.T) {
	t.Setenv("REPORT_TIMEZONE", "")
	t.Setenv("REPORT_UTC_OFFSET", "")

	cfg := Load()
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}

	at := time.Date(2025, 11, 10, 3, 0, 0, 0, time.UTC).In(loc)
	if at.Day() != 9 || at.Hour() != 22 {
		t.Fatalf("expected 2025-11-09 22:00 local, got %s", at)
	}
}

func TestLocationPrefersNamedTimezone(t *testing.T) {
	cfg := Config{ReportTimezone: "UTC", ReportUTCOffset: "-05:00"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.String() != "UTC" {
		t.Fatalf("expected UTC location, got %s", loc)
	}
}

func TestParseUTCOffset(t *testing.T) {
	cases := map[string]time.Duration{
		"-05:00": -5 * time.Hour,
		"+0530":  5*time.Hour + 30*time.Minute,
		"-5":     -5 * time.Hour,
		"":       0,
	}
	for raw, want := range cases {
		got, err := ParseUTCOffset(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}

	if _, err := ParseUTCOffset("-25:00"); err == nil {
		t.Fatalf("expected out-of-range offset to be rejected")
	}
}
