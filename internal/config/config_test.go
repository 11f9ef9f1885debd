package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PG_HOST", "localhost")
	t.Setenv("PG_USER", "peerprep")
	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("PG_DATABASE", "peerprep")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "peerprep", cfg.Name)
	assert.Equal(t, 30*time.Second, cfg.Matching.StaleAfter)
	assert.Equal(t, 10*time.Second, cfg.Matching.SweepInterval)
	assert.Equal(t, 30*time.Minute, cfg.Collab.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Collab.IdleSweepInterval)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "history:records", cfg.History.Channel)
	assert.Contains(t, cfg.CORS.AllowedOrigins, "http://localhost:5173")
	assert.Contains(t, cfg.Postgres.DSN(), "dbname=peerprep")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MATCH_STALE_AFTER", "45s")
	t.Setenv("COLLAB_IDLE_TIMEOUT", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Matching.StaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.Collab.IdleTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("PG_HOST", "")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	setRequired(t)
	t.Setenv("MATCH_SWEEP_INTERVAL", "0s")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadPostgresConnString(t *testing.T) {
	setRequired(t)
	t.Setenv("PG_PORT", "6543")

	pg, err := LoadPostgres()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=6543 user=peerprep password=secret dbname=peerprep sslmode=disable", pg.ConnString())
	assert.Equal(t, pg.ConnString()+" pool_max_conns=10", pg.DSN())
}
