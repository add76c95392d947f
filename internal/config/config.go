// Package config reads server settings from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chepyr/go-task-share/internal/auth"
	"github.com/chepyr/go-task-share/internal/db"
	"github.com/joho/godotenv"
)

type Config struct {
	DBDriver string

	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string
	SQLitePath       string

	ServerPort string

	JWTSecret string
	TokenTTL  time.Duration

	// allow max LoginRateLimit login attempts per LoginRateWindow from the same IP
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// websocket handshakes per user
	WSRateLimit  int
	WSRateWindow time.Duration

	ReminderInterval time.Duration
	ReminderLeadDays int

	AllowedOrigins []string
	// proxies whose X-Forwarded-For is believed; bare IPs are single hosts
	TrustedProxies []netip.Prefix
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDriver:         strings.TrimSpace(getenv("DB_DRIVER")),
		PostgresUser:     getenv("POSTGRES_USER"),
		PostgresPassword: getenv("POSTGRES_PASSWORD"),
		PostgresDB:       getenv("POSTGRES_DB"),
		PostgresHost:     getenv("POSTGRES_HOST"),
		PostgresPort:     getenv("POSTGRES_PORT"),
		SQLitePath:       getenv("SQLITE_PATH"),
		ServerPort:       getenv("SERVER_PORT"),
		JWTSecret:        getenv("JWT_SECRET"),
		AllowedOrigins:   splitList(getenv("ALLOWED_ORIGINS")),
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = db.DriverPostgres
	}

	var err error
	if cfg.TokenTTL, err = durationVar(getenv, "TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.LoginRateLimit, err = intVar(getenv, "LOGIN_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.LoginRateWindow, err = durationVar(getenv, "LOGIN_RATE_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.WSRateLimit, err = intVar(getenv, "WS_RATE_LIMIT", 30); err != nil {
		return nil, err
	}
	if cfg.WSRateWindow, err = durationVar(getenv, "WS_RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.TrustedProxies, err = parseProxies(splitList(getenv("TRUSTED_PROXIES"))); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = durationVar(getenv, "REMINDER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderLeadDays, err = intVar(getenv, "REMINDER_LEAD_DAYS", 1); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var required []string
	switch {
	case c.DBDriver == db.DriverPostgres:
		required = []string{"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT"}
	case db.IsSQLite(c.DBDriver):
		required = []string{"SQLITE_PATH"}
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver)
	}
	required = append(required, "SERVER_PORT")

	values := map[string]string{
		"POSTGRES_USER":     c.PostgresUser,
		"POSTGRES_PASSWORD": c.PostgresPassword,
		"POSTGRES_DB":       c.PostgresDB,
		"POSTGRES_HOST":     c.PostgresHost,
		"POSTGRES_PORT":     c.PostgresPort,
		"SQLITE_PATH":       c.SQLitePath,
		"SERVER_PORT":       c.ServerPort,
	}
	for _, env := range required {
		if values[env] == "" {
			return fmt.Errorf("environment variable %s must be set", env)
		}
	}

	if len(c.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", auth.MinSecretLength)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.LoginRateLimit <= 0 || c.LoginRateWindow <= 0 {
		return errors.New("LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}
	if c.WSRateLimit <= 0 || c.WSRateWindow <= 0 {
		return errors.New("WS_RATE_LIMIT and WS_RATE_WINDOW must be positive")
	}
	if c.ReminderInterval <= 0 {
		return errors.New("REMINDER_INTERVAL must be positive")
	}
	if c.ReminderLeadDays < 0 {
		return errors.New("REMINDER_LEAD_DAYS must not be negative")
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if db.IsSQLite(c.DBDriver) {
		return c.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)
}

func (c *Config) Addr() string {
	return ":" + c.ServerPort
}

func durationVar(getenv func(string) string, name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

func intVar(getenv func(string) string, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseProxies(entries []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
