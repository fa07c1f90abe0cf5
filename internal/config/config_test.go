package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elephantgerald/bartleby-sub001/internal/storage/memory"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 8, 24, hour, minute, 0, 0, time.Local)
}

func TestQuietHoursSameDayWindow(t *testing.T) {
	q := QuietHoursSettings{Enabled: true, Start: "09:00", End: "17:00"}

	assert.False(t, q.Contains(at(8, 59)))
	assert.True(t, q.Contains(at(9, 0)))
	assert.True(t, q.Contains(at(12, 30)))
	assert.True(t, q.Contains(at(17, 0)))
	assert.False(t, q.Contains(at(17, 1)))
}

func TestQuietHoursWrappingMidnight(t *testing.T) {
	q := QuietHoursSettings{Enabled: true, Start: "22:00", End: "06:00"}

	assert.True(t, q.Contains(at(23, 0)))
	assert.True(t, q.Contains(at(0, 30)))
	assert.True(t, q.Contains(at(6, 0)))
	assert.False(t, q.Contains(at(6, 1)))
	assert.False(t, q.Contains(at(12, 0)))
	assert.True(t, q.Contains(at(22, 0)))
	assert.False(t, q.Contains(at(21, 59)))
}

func TestQuietHoursDisabled(t *testing.T) {
	q := QuietHoursSettings{Enabled: false, Start: "00:00", End: "23:59"}
	assert.False(t, q.Contains(at(12, 0)))
}

func TestQuietHoursMalformedTimes(t *testing.T) {
	q := QuietHoursSettings{Enabled: true, Start: "25:00", End: "06:00"}
	assert.False(t, q.Contains(at(23, 0)), "malformed windows never match")
}

func TestBudgetExhaustedAtExactLimit(t *testing.T) {
	b := TokenBudgetSettings{Enabled: true, DailyLimit: 1000, TokensUsedToday: 999}
	assert.False(t, b.Exhausted())

	b.TokensUsedToday = 1000
	assert.True(t, b.Exhausted(), "exhausted at exactly the limit")

	b.Enabled = false
	assert.False(t, b.Exhausted(), "disabled budget never gates")
}

func TestBudgetResetIdempotentPerDay(t *testing.T) {
	b := TokenBudgetSettings{Enabled: true, DailyLimit: 1000, TokensUsedToday: 950, LastResetDate: "2026-08-23"}

	now := time.Date(2026, 8, 24, 0, 1, 0, 0, time.Local)
	assert.True(t, b.ResetIfNewDay(now))
	assert.Equal(t, 0, b.TokensUsedToday)
	assert.Equal(t, "2026-08-24", b.LastResetDate)

	// Later ticks the same day do not reset again.
	b.TokensUsedToday = 500
	assert.False(t, b.ResetIfNewDay(now.Add(6 * time.Hour)))
	assert.Equal(t, 500, b.TokensUsedToday)
}

func TestManagerRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New())

	settings, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults().AI.Model, settings.AI.Model, "fresh store yields defaults")

	updated, err := m.Update(ctx, func(s *AppSettings) {
		s.Tracker.Owner = "acme"
		s.TokenBudget.TokensUsedToday = 123
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", updated.Tracker.Owner)

	again, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", again.Tracker.Owner)
	assert.Equal(t, 123, again.TokenBudget.TokensUsedToday)
}

func TestManagerGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewManager(memory.New())

	first, err := m.Get(ctx)
	require.NoError(t, err)
	first.Tracker.Owner = "mutated"

	second, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Tracker.Owner, "mutating a Get result must not leak")
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("BARTLEBY_TRACKER_TOKEN", "env-token")
	t.Setenv("BARTLEBY_AI_MODEL", "env-model")

	// No config.yaml in the temp dir: defaults plus env.
	settings, err := LoadFile(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-token", settings.Tracker.Token)
	assert.Equal(t, "env-model", settings.AI.Model)
	assert.Equal(t, Defaults().SyncIntervalMinutes, settings.SyncIntervalMinutes)
}

func TestOrchestratorInterval(t *testing.T) {
	o := OrchestratorSettings{IntervalMinutes: 10}
	assert.Equal(t, 10*time.Minute, o.Interval())

	o.IntervalMinutes = 0
	assert.Equal(t, 5*time.Minute, o.Interval(), "non-positive interval falls back")
}
