package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	// Web Push / VAPID
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string // mailto: contact for push services

	// Prayer time calculation
	CalcMethod          string  // preset name, e.g. "iraq_jafari"
	DefaultTimezone     string  // IANA name for subscribers that send none
	FallbackOffsetHours float64 // used when a timezone name cannot be resolved

	// Scheduling
	NotifyLead          time.Duration // how far ahead of the prayer the push fires
	DueScanInterval     time.Duration
	DueBatchSize        int
	RetentionDays       int
	DispatchConcurrency int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Local postgres defaults
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "postgres",
		DBPassword: "",
		DBName:     "minaret",
		DBSSLMode:  "disable",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		VAPIDSubject: "mailto:admin@minaret.local",

		CalcMethod:          "iraq_jafari",
		DefaultTimezone:     "Asia/Baghdad",
		FallbackOffsetHours: 3,

		NotifyLead:          time.Minute,
		DueScanInterval:     time.Minute,
		DueBatchSize:        100,
		RetentionDays:       7,
		DispatchConcurrency: 8,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Database config
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.DBHost = host
	}

	if port := os.Getenv("DB_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
		cfg.DBPort = p
	}

	if user := os.Getenv("DB_USER"); user != "" {
		cfg.DBUser = user
	}

	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.DBPassword = password
	}

	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}

	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.DBSSLMode = sslmode
	}

	// Redis config. The limiter is optional: no REDIS_HOST means the
	// API runs unthrottled.
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
		cfg.RedisEnabled = true
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// VAPID keys. Missing keys are tolerated here; the push layer
	// generates an ephemeral pair and logs a loud warning.
	if key := os.Getenv("VAPID_PUBLIC_KEY"); key != "" {
		cfg.VAPIDPublicKey = key
	}

	if key := os.Getenv("VAPID_PRIVATE_KEY"); key != "" {
		cfg.VAPIDPrivateKey = key
	}

	if subject := os.Getenv("VAPID_SUBJECT"); subject != "" {
		cfg.VAPIDSubject = subject
	}

	// Calculation settings
	if method := os.Getenv("CALC_METHOD"); method != "" {
		cfg.CalcMethod = method
	}

	if tz := os.Getenv("DEFAULT_TIMEZONE"); tz != "" {
		cfg.DefaultTimezone = tz
	}

	if offset := os.Getenv("FALLBACK_UTC_OFFSET_HOURS"); offset != "" {
		o, err := strconv.ParseFloat(offset, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FALLBACK_UTC_OFFSET_HOURS: %w", err)
		}
		cfg.FallbackOffsetHours = o
	}

	// Scheduling
	if lead := os.Getenv("NOTIFY_LEAD_SECONDS"); lead != "" {
		s, err := strconv.Atoi(lead)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_LEAD_SECONDS: %w", err)
		}
		cfg.NotifyLead = time.Duration(s) * time.Second
	}

	if interval := os.Getenv("DUE_SCAN_INTERVAL_SECONDS"); interval != "" {
		s, err := strconv.Atoi(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid DUE_SCAN_INTERVAL_SECONDS: %w", err)
		}
		cfg.DueScanInterval = time.Duration(s) * time.Second
	}

	if size := os.Getenv("DUE_BATCH_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return nil, fmt.Errorf("invalid DUE_BATCH_SIZE: %w", err)
		}
		cfg.DueBatchSize = n
	}

	if days := os.Getenv("RETENTION_DAYS"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil {
			return nil, fmt.Errorf("invalid RETENTION_DAYS: %w", err)
		}
		cfg.RetentionDays = n
	}

	if workers := os.Getenv("DISPATCH_CONCURRENCY"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return nil, fmt.Errorf("invalid DISPATCH_CONCURRENCY: %w", err)
		}
		cfg.DispatchConcurrency = n
	}

	return cfg, nil
}
