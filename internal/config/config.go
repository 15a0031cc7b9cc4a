package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                   string
	AppEnv                 string
	AllowedOrigin          string
	DatabaseURL            string
	SQLitePath             string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ReportCacheTTLSeconds  int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	ReportTimezone         string
	ReportUTCOffset        string
	BootstrapAdminUsername string
	BootstrapAdminPassword string
	Logger                 LoggerConfig
}

type LoggerConfig struct {
	Level         string
	Encoding      string
	IsDevelopment bool
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "600"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 600
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "1440"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 1440
	}
	appEnv := getEnv("APP_ENV", "production")

	cfg := Config{
		Port:                   getEnv("PORT", "8080"),
		AppEnv:                 appEnv,
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		SQLitePath:             os.Getenv("SQLITE_PATH"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		ReportCacheTTLSeconds:  cacheTTL,
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		ReportTimezone:         strings.TrimSpace(os.Getenv("REPORT_TIMEZONE")),
		ReportUTCOffset:        getEnv("REPORT_UTC_OFFSET", "-05:00"),
		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPassword: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
		Logger: LoggerConfig{
			Level:         strings.TrimSpace(os.Getenv("LOG_LEVEL")),
			Encoding:      strings.TrimSpace(os.Getenv("LOG_ENCODING")),
			IsDevelopment: appEnv == "development",
		},
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location returns the zone used to bucket sales into days and months.
// A named timezone wins over the fixed offset.
func (c Config) Location() (*time.Location, error) {
	if c.ReportTimezone != "" {
		loc, err := time.LoadLocation(c.ReportTimezone)
		if err != nil {
			return nil, fmt.Errorf("REPORT_TIMEZONE: %w", err)
		}
		return loc, nil
	}

	offset, err := ParseUTCOffset(c.ReportUTCOffset)
	if err != nil {
		return nil, fmt.Errorf("REPORT_UTC_OFFSET: %w", err)
	}
	return time.FixedZone(formatOffsetName(offset), int(offset.Seconds())), nil
}

// ParseUTCOffset accepts "-05:00", "+0530", "-5" or "" (UTC).
func ParseUTCOffset(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "Z" {
		return 0, nil
	}

	sign := time.Duration(1)
	switch raw[0] {
	case '-':
		sign = -1
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	var hoursPart, minutesPart string
	switch {
	case strings.Contains(raw, ":"):
		parts := strings.SplitN(raw, ":", 2)
		hoursPart, minutesPart = parts[0], parts[1]
	case len(raw) == 4:
		hoursPart, minutesPart = raw[:2], raw[2:]
	default:
		hoursPart, minutesPart = raw, "0"
	}

	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours < 0 || hours > 14 {
		return 0, fmt.Errorf("invalid offset %q", raw)
	}
	minutes, err := strconv.Atoi(minutesPart)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid offset %q", raw)
	}

	return sign * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute), nil
}

func formatOffsetName(offset time.Duration) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%s%02d:%02d", sign, hours, minutes)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
