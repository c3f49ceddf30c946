package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUntil(t *testing.T) {
	got, err := parseUntil("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseUntil("2024-03-01T10:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC), got)

	_, err = parseUntil("next friday")
	assert.Error(t, err)
}

func TestLoadApp_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	raw := `
database:
  driver: sqlite
  dsn: file:` + filepath.Join(dir, "club.db") + `
  log_level: silent
auth:
  jwt_secret: secret
scheduler:
  enabled: true
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(raw), 0o600))

	a, err := loadApp(cfgPath, log.New(os.Stderr, "", 0))
	require.NoError(t, err)
	assert.Nil(t, a.webpush, "web push stays off without VAPID keys")
	assert.NotNil(t, a.timeline)
	assert.NotNil(t, a.reservations)

	// An empty database sweeps cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	assert.NoError(t, a.scheduler.SweepOnce(ctx))
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand(log.New(os.Stderr, "", 0))
	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "sweep", "materialize"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
