package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr      string // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	LogDir    string // logs directory
	LogLevel  string
	LogStderr bool
	DBPath    string // sqlite file; empty means in-memory store

	TargetsFile   string
	InlineTargets []string // TARGETS, used when the targets file does not exist

	CheckInterval       time.Duration
	ProbeTimeout        time.Duration
	PersistTimeout      time.Duration
	RetryAttempts       int           // attempts per probe strategy
	RetryBackoff        time.Duration // backoff between retries
	MaxConcurrentChecks int

	StatsWindow       time.Duration
	SnapshotRetention time.Duration

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	AllowedOrigins []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int

	SlackWebhookURL string
	AlertCooldown   time.Duration
	AlertOnRecovery bool
}

const day = 24 * time.Hour

func FromEnv() Config {
	return Config{
		Addr:      str("API_ADDR", "127.0.0.1:8080"),
		LogDir:    str("LOG_DIR", "logs"),
		LogLevel:  str("LOG_LEVEL", "info"),
		LogStderr: boolean("LOG_STDERR", false),
		// An explicitly empty DB_PATH selects the memory store.
		DBPath: strAllowEmpty("DB_PATH", "./linkmonitor.db"),

		TargetsFile:   str("TARGETS_FILE", "targets.yaml"),
		InlineTargets: list("TARGETS"),

		CheckInterval:       seconds("CHECK_INTERVAL_S", 60),
		ProbeTimeout:        millis("PROBE_TIMEOUT_MS", 2000),
		PersistTimeout:      millis("PERSIST_TIMEOUT_MS", 5000),
		RetryAttempts:       positive("RETRY_ATTEMPTS", 1),
		RetryBackoff:        millis("RETRY_BACKOFF_MS", 300),
		MaxConcurrentChecks: positive("MAX_CONCURRENT_CHECKS", 8),

		StatsWindow:       time.Duration(positive("STATS_WINDOW_DAYS", 30)) * day,
		SnapshotRetention: time.Duration(positive("SNAPSHOT_RETENTION_DAYS", 90)) * day,

		PublicAPIKeys:  list("PUBLIC_API_KEYS"),
		AdminAPIKeys:   list("ADMIN_API_KEYS"),
		AllowedOrigins: list("ALLOWED_ORIGINS"),
		PublicRPM:      nonNegative("PUBLIC_RPM", 120),
		PublicBurst:    positive("PUBLIC_BURST", 60),
		AdminRPM:       nonNegative("ADMIN_RPM", 600),
		AdminBurst:     positive("ADMIN_BURST", 120),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		AlertCooldown:   seconds("ALERT_COOLDOWN_S", 600),
		AlertOnRecovery: boolean("ALERT_ON_RECOVERY", true),
	}
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func strAllowEmpty(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intVal(key string, def int, ok func(int) bool) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ok(n) {
			return n
		}
	}
	return def
}

func positive(key string, def int) int {
	return intVal(key, def, func(n int) bool { return n > 0 })
}

func nonNegative(key string, def int) int {
	return intVal(key, def, func(n int) bool { return n >= 0 })
}

func seconds(key string, def int) time.Duration {
	return time.Duration(nonNegative(key, def)) * time.Second
}

func millis(key string, def int) time.Duration {
	return time.Duration(nonNegative(key, def)) * time.Millisecond
}

func boolean(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}
