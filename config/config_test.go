package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 14, cfg.Scheduler.HorizonDays)
	assert.Equal(t, 24*time.Hour, cfg.Reservations.DueSoon)
	assert.Equal(t, "manager", cfg.Auth.ManagerRole)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, "club.notifications", cfg.AMQP.Queue)
	assert.False(t, cfg.Push.Enabled())
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("CLUB_TEST_DSN", "file:club.db")
	cfg, err := Parse([]byte("database:\n  driver: sqlite\n  dsn: ${CLUB_TEST_DSN}\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:club.db", cfg.Database.DSN)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "scheduler:\n  interval_seconds: 5\n  timezone: Europe/Prague\nreservations:\n  due_soon_hours: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 3*time.Hour, cfg.Reservations.DueSoon)
	assert.Equal(t, "Europe/Prague", cfg.Scheduler.Location().String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSchedulerLocation_FallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SchedulerConfig{}.Location())
	assert.Equal(t, time.UTC, SchedulerConfig{Timezone: "Nowhere/Invalid"}.Location())
}
