package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		Environment:       "local",
		LogLevel:          "info",
		StoreDriver:       StoreDriverMemory,
		DBMinConns:        1,
		DBMaxConns:        8,
		APINamespace:      "langsync",
		NonceSecret:       "0123456789abcdef",
		DefaultAdminUser:  "admin",
		SessionTTLHours:   1,
		SessionCookieName: "langsync_session",
	}
}

func TestValidateAcceptsMemoryDriverWithoutDatabaseURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresDatabaseURLForPostgres(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.StoreDriver = StoreDriverPostgres
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.StoreDriver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for unknown store driver")
	}
}

func TestValidateRejectsShortNonceSecret(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.NonceSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "NONCE_SECRET") {
		t.Fatalf("expected NONCE_SECRET error, got %v", err)
	}
}

func TestAPIPrefix(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.APINamespace = "/4wp-polylang-sync/"
	if got := cfg.APIPrefix(); got != "/api/4wp-polylang-sync/v1" {
		t.Fatalf("unexpected prefix: %q", got)
	}

	var nilCfg *Config
	if got := nilCfg.APIPrefix(); got != "/api/langsync/v1" {
		t.Fatalf("unexpected default prefix: %q", got)
	}
}

func TestCORSAllowedOriginsListDeduplicates(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CORSAllowedOrigins = " https://a.example , ,https://b.example,https://a.example"
	got := cfg.CORSAllowedOriginsList()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %#v", got)
	}
}
