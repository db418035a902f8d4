package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	KeyPort, KeyDatabaseDriver, KeyDatabaseURL, KeyAccessTokenSecret, KeyTimezone,
	KeySweepSchedule, KeyJobMaxAttempts, KeyJobBackoffBase, KeyJobBackoffMax,
	KeyJobPollInterval, KeyWorkerConcurrency, KeyAdminEmail, KeyAdminPassword,
	KeyAdminFirstName, KeyAdminLastName, KeyAdminPhone, KeyLogLevel, KeyLogFormat,
}

// clearEnv unsets every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("failed to unset %s: %v", key, err)
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.Port != 8080 {
			t.Fatalf("expected default port 8080, got %d", cfg.Port)
		}
		if cfg.DatabaseDriver != DriverSQLite || cfg.DatabaseURL != "file:bethere.db" {
			t.Fatalf("unexpected default database %q %q", cfg.DatabaseDriver, cfg.DatabaseURL)
		}
		if cfg.Location != time.Local {
			t.Fatalf("expected local timezone by default")
		}
		if cfg.SweepSchedule != "0 0 * * *" {
			t.Fatalf("unexpected default sweep schedule %q", cfg.SweepSchedule)
		}
		if cfg.JobMaxAttempts != 3 || cfg.JobBackoffBase != 5*time.Second || cfg.JobBackoffMax != 5*time.Minute {
			t.Fatalf("unexpected job defaults %+v", cfg)
		}
		if cfg.JobPollInterval != time.Second || cfg.WorkerConcurrency != 4 {
			t.Fatalf("unexpected worker defaults %+v", cfg)
		}
		if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "json" {
			t.Fatalf("unexpected log defaults %v %q", cfg.LogLevel, cfg.LogFormat)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load(KeyAccessTokenSecret)
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "config: missing required environment variables: ACCESS_TOKEN_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses every field", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(KeyPort, "9090")
		t.Setenv(KeyDatabaseDriver, "Postgres")
		t.Setenv(KeyDatabaseURL, "postgres://bethere@localhost/bethere")
		t.Setenv(KeyAccessTokenSecret, "secret-value")
		t.Setenv(KeyTimezone, "UTC")
		t.Setenv(KeySweepSchedule, "*/15 * * * *")
		t.Setenv(KeyJobMaxAttempts, "5")
		t.Setenv(KeyJobBackoffBase, "2s")
		t.Setenv(KeyJobBackoffMax, "1m")
		t.Setenv(KeyJobPollInterval, "250ms")
		t.Setenv(KeyWorkerConcurrency, "8")
		t.Setenv(KeyAdminEmail, "admin@example.com")
		t.Setenv(KeyAdminPassword, " spaced secret ")
		t.Setenv(KeyAdminFirstName, "Ama")
		t.Setenv(KeyAdminLastName, "Mensah")
		t.Setenv(KeyLogLevel, "debug")
		t.Setenv(KeyLogFormat, "TEXT")

		cfg, err := Load(append([]string{KeyAccessTokenSecret}, AdminKeys...)...)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.Port != 9090 || cfg.DatabaseDriver != DriverPostgres || cfg.AccessTokenSecret != "secret-value" {
			t.Fatalf("unexpected server settings %+v", cfg)
		}
		if cfg.Location.String() != "UTC" || cfg.SweepSchedule != "*/15 * * * *" {
			t.Fatalf("unexpected schedule settings %s %q", cfg.Location, cfg.SweepSchedule)
		}
		if cfg.JobMaxAttempts != 5 || cfg.JobBackoffBase != 2*time.Second || cfg.JobBackoffMax != time.Minute || cfg.JobPollInterval != 250*time.Millisecond || cfg.WorkerConcurrency != 8 {
			t.Fatalf("unexpected job settings %+v", cfg)
		}
		if cfg.Admin.Password != " spaced secret " || cfg.Admin.FirstName != "Ama" {
			t.Fatalf("unexpected admin settings %+v", cfg.Admin)
		}
		if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "text" {
			t.Fatalf("unexpected log settings %v %q", cfg.LogLevel, cfg.LogFormat)
		}
	})

	t.Run("aggregates invalid values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(KeyPort, "eighty")
		t.Setenv(KeyDatabaseDriver, "mysql")
		t.Setenv(KeyTimezone, "Mars/Olympus")
		t.Setenv(KeySweepSchedule, "every night")
		t.Setenv(KeyJobBackoffBase, "-1s")
		t.Setenv(KeyWorkerConcurrency, "0")
		t.Setenv(KeyLogFormat, "xml")

		_, err := Load(KeyAdminEmail)
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		msg := err.Error()
		if !strings.Contains(msg, "missing required environment variables: ADMIN_EMAIL") {
			t.Fatalf("expected missing keys in %q", msg)
		}
		for _, key := range []string{KeyPort, KeyDatabaseDriver, KeyTimezone, KeySweepSchedule, KeyJobBackoffBase, KeyWorkerConcurrency, KeyLogFormat} {
			if !strings.Contains(msg, key) {
				t.Errorf("expected %s in %q", key, msg)
			}
		}
	})
}
