package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GO_PORT", "LOG_LEVEL", "DEV_MODE", "MAX_REVISIONS",
		"BACKTEST_ENGINE_URL", "BACKTEST_TIMEOUT", "BACKTEST_DEFAULT_START",
		"BACKTEST_DEFAULT_END", "BACKTEST_INITIAL_CAPITAL",
		"S3_BUCKET", "S3_ENDPOINT", "S3_REGION", "S3_ACCESS_KEY_ID",
		"S3_SECRET_ACCESS_KEY", "S3_PREFIX", "BACKUP_SCHEDULE",
		"BACKUP_RETENTION_DAYS", "MAINTENANCE_SCHEDULE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("TACTICAL_DATA_DIR", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 200, cfg.MaxRevisions)
	assert.Equal(t, 5*time.Minute, cfg.Backtest.Timeout)
	assert.Equal(t, "2015-01-01", cfg.Backtest.DefaultStart)
	assert.Equal(t, 10000.0, cfg.Backtest.InitialCapital)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("BACKTEST_TIMEOUT", "90s")
	t.Setenv("BACKTEST_INITIAL_CAPITAL", "2500.5")
	t.Setenv("S3_BUCKET", "strategies")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("BACKUP_SCHEDULE", "@daily")
	t.Setenv("MAX_REVISIONS", "not a number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 90*time.Second, cfg.Backtest.Timeout)
	assert.Equal(t, 2500.5, cfg.Backtest.InitialCapital)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, "@daily", cfg.Backup.Schedule)
	assert.Equal(t, 200, cfg.MaxRevisions, "unparseable values fall back to defaults")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:         8001,
			MaxRevisions: 10,
			Backtest: BacktestConfig{
				EngineURL:      "http://localhost:9000/backtest",
				Timeout:        time.Minute,
				DefaultStart:   "2015-01-01",
				DefaultEnd:     "2024-12-31",
				InitialCapital: 10000,
			},
			Backup:              BackupConfig{Schedule: "0 0 3 * * *"},
			MaintenanceSchedule: "0 0 2 * * *",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid GO_PORT"},
		{"negative revisions", func(c *Config) { c.MaxRevisions = -1 }, "invalid MAX_REVISIONS"},
		{"relative engine url", func(c *Config) { c.Backtest.EngineURL = "/backtest" }, "invalid BACKTEST_ENGINE_URL"},
		{"zero timeout", func(c *Config) { c.Backtest.Timeout = 0 }, "BACKTEST_TIMEOUT"},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, "BACKTEST_INITIAL_CAPITAL"},
		{"bad start date", func(c *Config) { c.Backtest.DefaultStart = "01/01/2015" }, "BACKTEST_DEFAULT_START"},
		{"bad maintenance schedule", func(c *Config) { c.MaintenanceSchedule = "often" }, "MAINTENANCE_SCHEDULE"},
		{"backup schedule ignored when disabled", func(c *Config) { c.Backup.Schedule = "often" }, ""},
		{"bad backup schedule", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.Schedule = "often"
		}, "BACKUP_SCHEDULE"},
		{"half credentials", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.AccessKeyID = "key"
		}, "must be set together"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
