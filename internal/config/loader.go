package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Environment keys read by Load.
const (
	KeyPort              = "PORT"
	KeyDatabaseDriver    = "DATABASE_DRIVER"
	KeyDatabaseURL       = "DATABASE_URL"
	KeyAccessTokenSecret = "ACCESS_TOKEN_SECRET"
	KeyTimezone          = "TIMEZONE"
	KeySweepSchedule     = "SWEEP_SCHEDULE"
	KeyJobMaxAttempts    = "JOB_MAX_ATTEMPTS"
	KeyJobBackoffBase    = "JOB_BACKOFF_BASE"
	KeyJobBackoffMax     = "JOB_BACKOFF_MAX"
	KeyJobPollInterval   = "JOB_POLL_INTERVAL"
	KeyWorkerConcurrency = "WORKER_CONCURRENCY"
	KeyAdminEmail        = "ADMIN_EMAIL"
	KeyAdminPassword     = "ADMIN_PASSWORD"
	KeyAdminFirstName    = "ADMIN_FIRSTNAME"
	KeyAdminLastName     = "ADMIN_LASTNAME"
	KeyAdminPhone        = "ADMIN_PHONE"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AdminKeys lists the variables the seed-admin command needs.
var AdminKeys = []string{KeyAdminEmail, KeyAdminPassword, KeyAdminFirstName, KeyAdminLastName}

// Config captures environment driven configuration values for the BeThere processes.
type Config struct {
	Port              int
	DatabaseDriver    string
	DatabaseURL       string
	AccessTokenSecret string
	// Location is the calendar in which session dates and daily windows are evaluated.
	Location          *time.Location
	SweepSchedule     string
	JobMaxAttempts    int
	JobBackoffBase    time.Duration
	JobBackoffMax     time.Duration
	JobPollInterval   time.Duration
	WorkerConcurrency int
	Admin             Admin
	LogLevel          slog.Level
	LogFormat         string
}

// Admin is the account created by the seed-admin command.
type Admin struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Load parses configuration values from the current process environment.
//
// Optional values fall back to defaults. The keys named in required must be
// set. Every missing or invalid key is reported in one error.
func Load(required ...string) (Config, error) {
	cfg := Config{
		Port:              8080,
		DatabaseDriver:    DriverSQLite,
		DatabaseURL:       "file:bethere.db",
		Location:          time.Local,
		SweepSchedule:     "0 0 * * *",
		JobMaxAttempts:    3,
		JobBackoffBase:    5 * time.Second,
		JobBackoffMax:     5 * time.Minute,
		JobPollInterval:   time.Second,
		WorkerConcurrency: 4,
		LogLevel:          slog.LevelInfo,
		LogFormat:         "json",
	}

	var missing, invalid []string

	for _, key := range required {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}

	if value := env(KeyPort); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, KeyPort)
		} else {
			cfg.Port = port
		}
	}

	if value := env(KeyDatabaseDriver); value != "" {
		switch strings.ToLower(value) {
		case DriverSQLite, DriverPostgres:
			cfg.DatabaseDriver = strings.ToLower(value)
		default:
			invalid = append(invalid, KeyDatabaseDriver)
		}
	}

	if value := env(KeyDatabaseURL); value != "" {
		cfg.DatabaseURL = value
	}
	cfg.AccessTokenSecret = env(KeyAccessTokenSecret)

	if value := env(KeyTimezone); value != "" {
		loc, err := time.LoadLocation(value)
		if err != nil {
			invalid = append(invalid, KeyTimezone)
		} else {
			cfg.Location = loc
		}
	}

	if value := env(KeySweepSchedule); value != "" {
		if _, err := cron.ParseStandard(value); err != nil {
			invalid = append(invalid, KeySweepSchedule)
		} else {
			cfg.SweepSchedule = value
		}
	}

	parsePositiveInt(KeyJobMaxAttempts, &cfg.JobMaxAttempts, &invalid)
	parsePositiveInt(KeyWorkerConcurrency, &cfg.WorkerConcurrency, &invalid)
	parsePositiveDuration(KeyJobBackoffBase, &cfg.JobBackoffBase, &invalid)
	parsePositiveDuration(KeyJobBackoffMax, &cfg.JobBackoffMax, &invalid)
	parsePositiveDuration(KeyJobPollInterval, &cfg.JobPollInterval, &invalid)

	cfg.Admin = Admin{
		Email:     env(KeyAdminEmail),
		Password:  os.Getenv(KeyAdminPassword),
		FirstName: env(KeyAdminFirstName),
		LastName:  env(KeyAdminLastName),
		Phone:     env(KeyAdminPhone),
	}

	if value := env(KeyLogLevel); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, KeyLogLevel)
		}
	}

	if value := env(KeyLogFormat); value != "" {
		switch strings.ToLower(value) {
		case "json", "text":
			cfg.LogFormat = strings.ToLower(value)
		default:
			invalid = append(invalid, KeyLogFormat)
		}
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required environment variables: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "invalid environment variables: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parsePositiveInt(key string, dst *int, invalid *[]string) {
	value := env(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*dst = n
}

func parsePositiveDuration(key string, dst *time.Duration, invalid *[]string) {
	value := env(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*dst = d
}
