// Package config defines the application settings singleton and its
// persistence. Settings are a read-mostly cache over the settings
// repository, invalidated on write; file-based bootstrap uses viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateFormat is the layout for TokenBudget.LastResetDate.
const DateFormat = "2006-01-02"

// AppSettings is the process-wide configuration singleton.
type AppSettings struct {
	Tracker      TrackerSettings      `json:"tracker" yaml:"tracker" mapstructure:"tracker"`
	AI           AISettings           `json:"ai" yaml:"ai" mapstructure:"ai"`
	Orchestrator OrchestratorSettings `json:"orchestrator" yaml:"orchestrator" mapstructure:"orchestrator"`
	QuietHours   QuietHoursSettings   `json:"quiet_hours" yaml:"quiet_hours" mapstructure:"quiet_hours"`
	TokenBudget  TokenBudgetSettings  `json:"token_budget" yaml:"token_budget" mapstructure:"token_budget"`
	Git          GitSettings          `json:"git" yaml:"git" mapstructure:"git"`

	GraphFilePath       string `json:"graph_file_path" yaml:"graph_file_path" mapstructure:"graph_file_path"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes" yaml:"sync_interval_minutes" mapstructure:"sync_interval_minutes"`

	LastSyncTime *time.Time `json:"last_sync_time,omitempty" yaml:"last_sync_time,omitempty" mapstructure:"last_sync_time"`
}

// TrackerSettings holds external issue tracker credentials.
type TrackerSettings struct {
	Token string `json:"token" yaml:"token" mapstructure:"token"`
	Owner string `json:"owner" yaml:"owner" mapstructure:"owner"`
	Repo  string `json:"repo" yaml:"repo" mapstructure:"repo"`
}

// Validate checks that the tracker can be used for sync.
func (t *TrackerSettings) Validate() error {
	if t.Token == "" {
		return fmt.Errorf("tracker token is required")
	}
	if t.Owner == "" || t.Repo == "" {
		return fmt.Errorf("tracker owner and repo are required")
	}
	return nil
}

// AISettings holds AI provider credentials and model selection.
type AISettings struct {
	APIKey string `json:"api_key" yaml:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" yaml:"model" mapstructure:"model"`
}

// OrchestratorSettings controls the background work loop.
type OrchestratorSettings struct {
	Enabled                bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	IntervalMinutes        int  `json:"interval_minutes" yaml:"interval_minutes" mapstructure:"interval_minutes"`
	MaxConcurrentWorkItems int  `json:"max_concurrent_work_items" yaml:"max_concurrent_work_items" mapstructure:"max_concurrent_work_items"`
	MaxRetryAttempts       int  `json:"max_retry_attempts" yaml:"max_retry_attempts" mapstructure:"max_retry_attempts"`
}

// Interval returns the tick cadence as a duration.
func (o *OrchestratorSettings) Interval() time.Duration {
	if o.IntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(o.IntervalMinutes) * time.Minute
}

// QuietHoursSettings defines a local time-of-day interval during which the
// orchestrator refuses to start new work. Start and End are "HH:MM".
type QuietHoursSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Start   string `json:"start" yaml:"start" mapstructure:"start"`
	End     string `json:"end" yaml:"end" mapstructure:"end"`
}

// Contains reports whether the local time-of-day of t falls inside the quiet
// window. Windows wrapping midnight (e.g. 22:00-06:00) are handled by the
// two-interval check.
func (q *QuietHoursSettings) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err1 := parseMinutes(q.Start)
	end, err2 := parseMinutes(q.End)
	if err1 != nil || err2 != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if start <= end {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

// parseMinutes converts "HH:MM" to minutes after midnight.
func parseMinutes(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time-of-day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// TokenBudgetSettings caps cumulative AI token usage per local day.
type TokenBudgetSettings struct {
	Enabled         bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	DailyLimit      int    `json:"daily_limit" yaml:"daily_limit" mapstructure:"daily_limit"`
	TokensUsedToday int    `json:"tokens_used_today" yaml:"tokens_used_today" mapstructure:"tokens_used_today"`
	LastResetDate   string `json:"last_reset_date" yaml:"last_reset_date" mapstructure:"last_reset_date"`
}

// Exhausted reports whether the budget gate is closed.
func (b *TokenBudgetSettings) Exhausted() bool {
	return b.Enabled && b.DailyLimit > 0 && b.TokensUsedToday >= b.DailyLimit
}

// ResetIfNewDay zeroes the counter when the local date has advanced past
// LastResetDate. Returns true if a reset happened. Calling repeatedly within
// one local day resets at most once.
func (b *TokenBudgetSettings) ResetIfNewDay(now time.Time) bool {
	today := now.Format(DateFormat)
	if b.LastResetDate == today {
		return false
	}
	b.TokensUsedToday = 0
	b.LastResetDate = today
	return true
}

// GitSettings controls branch/commit behaviour on item completion.
type GitSettings struct {
	WorkingDirectory string `json:"working_directory" yaml:"working_directory" mapstructure:"working_directory"`
	AutoCommit       bool   `json:"auto_commit" yaml:"auto_commit" mapstructure:"auto_commit"`
	AutoPush         bool   `json:"auto_push" yaml:"auto_push" mapstructure:"auto_push"`
	Remote           string `json:"remote" yaml:"remote" mapstructure:"remote"`
}

// Defaults returns the settings used when nothing is configured yet.
func Defaults() *AppSettings {
	return &AppSettings{
		AI: AISettings{Model: "claude-sonnet-4-5"},
		Orchestrator: OrchestratorSettings{
			Enabled:                true,
			IntervalMinutes:        5,
			MaxConcurrentWorkItems: 1,
			MaxRetryAttempts:       3,
		},
		QuietHours: QuietHoursSettings{Start: "22:00", End: "06:00"},
		TokenBudget: TokenBudgetSettings{
			DailyLimit: 1_000_000,
		},
		Git: GitSettings{
			AutoCommit: true,
			Remote:     "origin",
		},
		GraphFilePath:       "graph.puml",
		SyncIntervalMinutes: 15,
	}
}
