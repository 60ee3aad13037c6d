package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"VACATION_DB_PATH", "DATABASE_URL", "VACATION_JWT_SECRET", "VACATION_LISTEN_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
  read_timeout: "5s"
  allowed_origins: ["https://hr.example.com"]
database:
  driver: postgres
  host: db
  user: vacation
  password: secret
  name: vacation
  max_open_conns: 10
  conn_max_lifetime: "30m"
auth:
  jwt_secret: "s3cret"
vacation:
  max_retries: 5
  enforce_balance_on_create: true
scheduler:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, []string{"https://hr.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "postgres://vacation:secret@db:5432/vacation?sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, 5, cfg.Vacation.MaxRetries)
	assert.Equal(t, 4, cfg.Vacation.ReconcileWorkers)
	assert.True(t, cfg.Vacation.EnforceBalanceOnCreate)
	assert.False(t, cfg.Vacation.EnforceAnniversaryWindow)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VACATION_JWT_SECRET", "from-env")
	t.Setenv("VACATION_LISTEN_ADDR", ":7000")
	t.Setenv("VACATION_DB_PATH", "/tmp/v.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, ":7000", cfg.Server.ListenAddr)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/v.db", cfg.Database.Path)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.Schedule)

	t.Setenv("DATABASE_URL", "postgres://u:p@h:1/d")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@h:1/d", cfg.Database.DSN())
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"missing secret":   `server: {listen_addr: ":1"}`,
		"bad driver":       "auth: {jwt_secret: x}\ndatabase: {driver: mysql}",
		"postgres host":    "auth: {jwt_secret: x}\ndatabase: {driver: postgres, user: u, name: n}",
		"bad timeout":      "auth: {jwt_secret: x}\nserver: {listen_addr: \":1\", read_timeout: soon}",
		"negative retries": "auth: {jwt_secret: x}\nvacation: {max_retries: -1}",
		"zero retries":     "auth: {jwt_secret: x}\nvacation: {max_retries: 0}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
