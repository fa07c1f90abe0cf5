package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/elephantgerald/bartleby-sub001/internal/storage"
)

// settingsKey is the repository key the AppSettings singleton lives under.
const settingsKey = "settings"

// ConfigFileName is the bootstrap file read by viper in the project dir.
const ConfigFileName = "config.yaml"

// EnvPrefix is the prefix for environment overrides (BARTLEBY_TRACKER_TOKEN
// overrides tracker.token, and so on).
const EnvPrefix = "BARTLEBY"

// Manager is the settings repository facade: a read-mostly cache over the
// storage backend, invalidated on write. It is the only writer of the
// settings singleton; everyone else reads through Get.
type Manager struct {
	store storage.Storage

	mu     sync.RWMutex
	cached *AppSettings
}

// NewManager creates a settings manager over the given storage backend.
func NewManager(store storage.Storage) *Manager {
	return &Manager{store: store}
}

// Get returns the current settings, loading from storage on first use.
// Callers receive a copy; mutate through Update.
func (m *Manager) Get(ctx context.Context) (*AppSettings, error) {
	m.mu.RLock()
	if m.cached != nil {
		out := *m.cached
		m.mu.RUnlock()
		return &out, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached != nil {
		out := *m.cached
		return &out, nil
	}

	raw, err := m.store.GetConfig(ctx, settingsKey)
	if errors.Is(err, storage.ErrNotFound) {
		m.cached = Defaults()
		out := *m.cached
		return &out, nil
	}
	if err != nil {
		return nil, err
	}

	var settings AppSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("parsing stored settings: %w", err)
	}
	m.cached = &settings
	out := settings
	return &out, nil
}

// Update applies fn to the current settings and persists the result. The
// cache is replaced only after the write succeeds, so readers never observe
// an unsaved state.
func (m *Manager) Update(ctx context.Context, fn func(*AppSettings)) (*AppSettings, error) {
	current, err := m.Get(ctx)
	if err != nil {
		return nil, err
	}
	fn(current)
	if err := m.Save(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// Save persists settings and invalidates the cache.
func (m *Manager) Save(ctx context.Context, settings *AppSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := m.store.SetConfig(ctx, settingsKey, string(data)); err != nil {
		return err
	}
	m.mu.Lock()
	out := *settings
	m.cached = &out
	m.mu.Unlock()
	return nil
}

// LoadFile reads the bootstrap config.yaml from dir through viper, layering
// environment overrides (BARTLEBY_*) over file values over defaults. A
// missing file yields defaults plus env.
func LoadFile(dir string) (*AppSettings, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	// Nested keys (tracker.token) map to env segments (TRACKER_TOKEN).
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v, Defaults())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	var settings AppSettings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	return &settings, nil
}

// WriteFile writes settings as YAML to dir/config.yaml, creating dir as
// needed. Used by `bartleby init` to scaffold a project.
func WriteFile(dir string, settings *AppSettings) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// setViperDefaults registers every settings key. Registration makes the keys
// known to viper, which AutomaticEnv requires before an env-only value is
// visible to Unmarshal.
func setViperDefaults(v *viper.Viper, d *AppSettings) {
	v.SetDefault("tracker.token", d.Tracker.Token)
	v.SetDefault("tracker.owner", d.Tracker.Owner)
	v.SetDefault("tracker.repo", d.Tracker.Repo)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("orchestrator.enabled", d.Orchestrator.Enabled)
	v.SetDefault("orchestrator.interval_minutes", d.Orchestrator.IntervalMinutes)
	v.SetDefault("orchestrator.max_concurrent_work_items", d.Orchestrator.MaxConcurrentWorkItems)
	v.SetDefault("orchestrator.max_retry_attempts", d.Orchestrator.MaxRetryAttempts)
	v.SetDefault("quiet_hours.enabled", d.QuietHours.Enabled)
	v.SetDefault("quiet_hours.start", d.QuietHours.Start)
	v.SetDefault("quiet_hours.end", d.QuietHours.End)
	v.SetDefault("token_budget.enabled", d.TokenBudget.Enabled)
	v.SetDefault("token_budget.daily_limit", d.TokenBudget.DailyLimit)
	v.SetDefault("git.working_directory", d.Git.WorkingDirectory)
	v.SetDefault("git.auto_commit", d.Git.AutoCommit)
	v.SetDefault("git.auto_push", d.Git.AutoPush)
	v.SetDefault("git.remote", d.Git.Remote)
	v.SetDefault("graph_file_path", d.GraphFilePath)
	v.SetDefault("sync_interval_minutes", d.SyncIntervalMinutes)
}
