// Package config loads slawatch configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/robfig/cron/v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Defaults applied when a variable is unset or invalid.
const (
	DefaultListenAddr       = ":8080"
	DefaultScanSchedule     = "@every 1m"
	DefaultScanTimeout      = 30 * time.Second
	DefaultScanConcurrency  = 4
	DefaultNotifyLevel      = models.WarningLevelHigh
	DefaultWebhookTimeout   = 10 * time.Second
	DefaultWebhookRetries   = 3
	defaultShutdownDeadline = 15 * time.Second
)

// ScheduleParser accepts standard five-field specs, an optional leading
// seconds field, and descriptors such as "@every 1m".
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// MonitorConfig holds the process configuration of the SLA monitor server.
type MonitorConfig struct {
	Environment Environment
	DatabaseURL string
	ListenAddr  string

	ScanSchedule    string
	ScanTimeout     time.Duration
	ScanConcurrency int
	AllowPartial    bool

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
	WebhookRetries int

	// NotifyWarningLevel is the lowest warning level that triggers a notification.
	NotifyWarningLevel models.WarningLevel

	ShutdownTimeout time.Duration
}

// LoadMonitorConfig reads the monitor configuration from the environment.
func LoadMonitorConfig() MonitorConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		env = EnvDevelopment
	}

	listen := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listen == "" {
		if port := getEnvInt("PORT", 0); port > 0 && port < 65536 {
			listen = fmt.Sprintf(":%d", port)
		} else {
			listen = DefaultListenAddr
		}
	}

	schedule := strings.TrimSpace(os.Getenv("SLA_SCAN_SCHEDULE"))
	if _, err := ScheduleParser.Parse(schedule); schedule == "" || err != nil {
		schedule = DefaultScanSchedule
	}

	concurrency := getEnvInt("SLA_SCAN_CONCURRENCY", DefaultScanConcurrency)
	if concurrency < 1 {
		concurrency = DefaultScanConcurrency
	}

	retries := getEnvInt("SLA_WEBHOOK_RETRIES", DefaultWebhookRetries)
	if retries < 0 {
		retries = DefaultWebhookRetries
	}

	level := models.WarningLevel(strings.ToLower(strings.TrimSpace(os.Getenv("SLA_NOTIFY_WARNING_LEVEL"))))
	if level.Rank() == 0 {
		level = DefaultNotifyLevel
	}

	return MonitorConfig{
		Environment:        env,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ListenAddr:         listen,
		ScanSchedule:       schedule,
		ScanTimeout:        getEnvDuration("SLA_SCAN_TIMEOUT", DefaultScanTimeout),
		ScanConcurrency:    concurrency,
		AllowPartial:       getEnvBool("SLA_ALLOW_PARTIAL", false),
		WebhookURL:         strings.TrimSpace(os.Getenv("SLA_WEBHOOK_URL")),
		WebhookSecret:      os.Getenv("SLA_WEBHOOK_SECRET"),
		WebhookTimeout:     getEnvDuration("SLA_WEBHOOK_TIMEOUT", DefaultWebhookTimeout),
		WebhookRetries:     retries,
		NotifyWarningLevel: level,
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", defaultShutdownDeadline),
	}
}

// Validate reports configuration that cannot be defaulted.
func (c MonitorConfig) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.WebhookSecret != "" && c.WebhookURL == "" {
		errs = append(errs, errors.New("SLA_WEBHOOK_SECRET is set without SLA_WEBHOOK_URL"))
	}
	if _, err := ScheduleParser.Parse(c.ScanSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SLA_SCAN_SCHEDULE: %w", err))
	}
	return errors.Join(errs...)
}

// IsProduction returns true in the production environment.
func (c MonitorConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a Go duration ("30s") or a bare number of seconds.
// Non-positive or invalid values return the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
