/*
config.go - Server configuration

PURPOSE:

	Loads the YAML configuration file, applies .env and environment
	overrides, then validates and fills defaults. Every binary under cmd/
	starts from Load.

ENVIRONMENT OVERRIDES:

	VACATION_DB_PATH      database.path (sqlite)
	DATABASE_URL          database.url (postgres, wins over host/port/...)
	VACATION_JWT_SECRET   auth.jwt_secret
	VACATION_LISTEN_ADDR  server.listen_addr
*/
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Vacation  VacationConfig  `yaml:"vacation"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"-"`
	WriteTimeout    time.Duration `yaml:"-"`
	ReadTimeoutRaw  string        `yaml:"read_timeout"`
	WriteTimeoutRaw string        `yaml:"write_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig covers both backends. SQLite only reads Path; Postgres
// reads URL when set, otherwise the individual connection fields.
type DatabaseConfig struct {
	Driver             string        `yaml:"driver"`
	Path               string        `yaml:"path"`
	URL                string        `yaml:"url"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type VacationConfig struct {
	MaxRetries               int  `yaml:"max_retries"`
	EnforceAnniversaryWindow bool `yaml:"enforce_anniversary_window"`
	EnforceBalanceOnCreate   bool `yaml:"enforce_balance_on_create"`
	ReconcileWorkers         int  `yaml:"reconcile_workers"`
}

type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Load reads path (optional; an empty path means defaults plus environment),
// then applies overrides and validation.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Config] ignoring .env: %v", err)
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeoutRaw:  "15s",
			WriteTimeoutRaw: "15s",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "vacation.db",
		},
		Auth: AuthConfig{Issuer: "vacation-engine"},
		Vacation: VacationConfig{
			MaxRetries:       3,
			ReconcileWorkers: 4,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Schedule: "0 3 * * *",
		},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VACATION_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
		c.Database.Driver = DriverPostgres
	}
	if v := os.Getenv("VACATION_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("VACATION_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}
	var err error
	if c.Server.ReadTimeout, err = parseDurationAllowEmpty(c.Server.ReadTimeoutRaw); err != nil {
		return fmt.Errorf("config: server.read_timeout: %w", err)
	}
	if c.Server.WriteTimeout, err = parseDurationAllowEmpty(c.Server.WriteTimeoutRaw); err != nil {
		return fmt.Errorf("config: server.write_timeout: %w", err)
	}

	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret must be set (or VACATION_JWT_SECRET)")
	}

	v := &c.Vacation
	if v.MaxRetries < 1 {
		return fmt.Errorf("config: vacation.max_retries must be at least 1, got %d", v.MaxRetries)
	}
	if v.ReconcileWorkers <= 0 {
		v.ReconcileWorkers = 4
	}

	if c.Scheduler.Enabled && c.Scheduler.Schedule == "" {
		c.Scheduler.Schedule = "0 3 * * *"
	}
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Driver == "" {
		d.Driver = DriverSQLite
	}
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("config: database.path must be set for sqlite")
		}
	case DriverPostgres:
		if d.URL == "" {
			if d.Host == "" {
				return fmt.Errorf("config: database.host must be set")
			}
			if d.Port == 0 {
				d.Port = 5432
			}
			if d.User == "" {
				return fmt.Errorf("config: database.user must be set")
			}
			if d.Name == "" {
				return fmt.Errorf("config: database.name must be set")
			}
		}
		if d.SSLMode == "" {
			d.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("config: unsupported database.driver %q", d.Driver)
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime
	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

// DSN returns the pgx connection string for the postgres driver.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
