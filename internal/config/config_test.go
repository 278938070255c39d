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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := writeConfig(t, "auth:\n  jwt_secret: from-file\n")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 720*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Tasks.DefaultTimeLimit())
	assert.False(t, cfg.Tasks.ExpirationEnabled)
	assert.InDelta(t, 50.0, cfg.Withdrawal.DefaultMinAmount, 1e-9)
	assert.InDelta(t, 100.0, cfg.Users.InitialBalance, 1e-9)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Notify.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	dir := writeConfig(t, "auth:\n  jwt_secret: from-file\ntasks:\n  default_time_limit_hours: 12\n")
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	t.Setenv("TASKS_EXPIRATION_ENABLED", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Tasks.ExpirationEnabled)
	assert.Equal(t, 12*time.Hour, cfg.Tasks.DefaultTimeLimit())
}

func TestValidate(t *testing.T) {
	valid := Config{
		Auth:    AuthConfig{JWTSecret: "secret"},
		Storage: StorageConfig{Driver: "local"},
	}
	require.NoError(t, valid.Validate())

	noSecret := valid
	noSecret.Auth.JWTSecret = ""
	assert.Error(t, noSecret.Validate())

	unknownDriver := valid
	unknownDriver.Storage.Driver = "ftp"
	assert.Error(t, unknownDriver.Validate())

	s3NoBucket := valid
	s3NoBucket.Storage.Driver = "s3"
	assert.Error(t, s3NoBucket.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Name: "hr"}
	assert.Equal(t, "postgres://u:p@db:5432/hr?sslmode=disable", d.DSN())
}
