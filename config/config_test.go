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

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.CacheTTL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 2, cfg.Database.MaxIdleConns)
	assert.Equal(t, 30, cfg.Database.ConnMaxLifetimeMinutes)
	assert.Equal(t, 10, cfg.Scheduler.Seats)
	assert.Equal(t, 9, cfg.Scheduler.HoursPerDay)
	assert.Equal(t, 8*time.Hour, cfg.Scheduler.DayStartOffset)
	assert.Equal(t, time.UTC, cfg.Scheduler.Location)
	assert.Equal(t, "drop", cfg.Scheduler.MismatchPolicy)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TimeBudget)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 4, cfg.WorkerPool.QueueSize)
	assert.Equal(t, time.Hour, cfg.Runs.TTL)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_SchedulerOverrides(t *testing.T) {
	body := `
scheduler:
  seats: 4
  hours_per_day: 10
  day_start: "07:30"
  timezone: "Europe/London"
  mismatch_policy: reject
worker_pool:
  size: 3
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Scheduler.Seats)
	assert.Equal(t, 10, cfg.Scheduler.HoursPerDay)
	assert.Equal(t, 7*time.Hour+30*time.Minute, cfg.Scheduler.DayStartOffset)
	assert.Equal(t, "Europe/London", cfg.Scheduler.Location.String())
	assert.Equal(t, "reject", cfg.Scheduler.MismatchPolicy)
	assert.Equal(t, 12, cfg.WorkerPool.QueueSize)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "Bad clock", body: "scheduler:\n  day_start: \"8am\"\n"},
		{name: "Bad timezone", body: "scheduler:\n  timezone: \"Mars/Olympus\"\n"},
		{name: "Bad yaml", body: "server: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("08:00")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, d)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}

func TestDatabaseConfig_ApplyPoolDefaults(t *testing.T) {
	testCases := []struct {
		name     string
		in       DatabaseConfig
		expected DatabaseConfig
	}{
		{
			name:     "Nothing set",
			in:       DatabaseConfig{},
			expected: DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 2, ConnMaxLifetimeMinutes: 30},
		},
		{
			name:     "Single connection keeps it idle",
			in:       DatabaseConfig{MaxOpenConns: 1},
			expected: DatabaseConfig{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetimeMinutes: 30},
		},
		{
			name:     "Idle capped by open",
			in:       DatabaseConfig{MaxOpenConns: 3, MaxIdleConns: 8, ConnMaxLifetimeMinutes: 5},
			expected: DatabaseConfig{MaxOpenConns: 3, MaxIdleConns: 3, ConnMaxLifetimeMinutes: 5},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in
			got.ApplyPoolDefaults()
			assert.Equal(t, tc.expected, got)
		})
	}
}
