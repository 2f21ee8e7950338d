package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// App holds the agent configuration loaded from environment variables.
type App struct {
	Env        string
	ListenAddr string
	BackendURL string

	// DeviceID overrides the platform fingerprint; mobile shells always set it.
	DeviceID string

	PrefsPath string
	CacheDir  string

	HistoryLimit int

	ReminderHour       int
	ReminderMinute     int
	ReminderRetryDelay time.Duration
	RestDay            time.Weekday

	DispatchBackend string // "memory" or "redis"
	RedisAddr       string
	ReminderKey     string
}

// Load returns the agent config populated from environment variables with
// sensible defaults. The listen address defaults to loopback only: the agent
// is a local bridge for the presentation shell, not a public server.
func Load() App {
	return App{
		Env:                getEnv("APP_ENV", "dev"),
		ListenAddr:         getEnv("AGENT_ADDR", "127.0.0.1:7420"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:3000"),
		DeviceID:           getEnv("DEVICE_ID", ""),
		PrefsPath:          getEnv("PREFS_PATH", filepath.Join(dataDir(), "prefs.db")),
		CacheDir:           getEnv("CACHE_DIR", filepath.Join(dataDir(), "cache")),
		HistoryLimit:       intEnv("HISTORY_LIMIT", 30),
		ReminderHour:       intEnv("REMINDER_HOUR", 9),
		ReminderMinute:     intEnv("REMINDER_MINUTE", 5),
		ReminderRetryDelay: durationEnv("REMINDER_RETRY_DELAY", 15*time.Minute),
		RestDay:            weekdayEnv("REST_DAY", time.Sunday),
		DispatchBackend:    getEnv("DISPATCH_BACKEND", "memory"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		ReminderKey:        getEnv("REMINDER_KEY", "lockin:reminders"),
	}
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "infinitar-lockin")
	}
	return ".infinitar-lockin"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func weekdayEnv(key string, fallback time.Weekday) time.Weekday {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), val) {
			return d
		}
	}
	log.Printf("invalid weekday for %s, using fallback %s", key, fallback)
	return fallback
}
