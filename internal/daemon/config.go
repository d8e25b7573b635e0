// Package daemon holds the engine's configuration, loaded from a TOML file
// with environment-independent defaults.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full engine configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Storage   StorageConfig   `toml:"storage"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Rates     RatesConfig     `toml:"rates"`
}

// APIConfig configures the ops HTTP server.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Metrics bool   `toml:"metrics"`
}

// Addr returns the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// StorageConfig selects the repository backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `toml:"backend"`
	// Path is the SQLite database file (ignored for memory).
	Path string `toml:"path"`
}

// SchedulerConfig overrides job cadences. Durations use Go syntax ("5m").
// Zero values keep the production defaults.
type SchedulerConfig struct {
	ReminderInterval duration `toml:"reminder_interval"`
	SessionCleanup   duration `toml:"session_cleanup_interval"`
	CacheCleanup     duration `toml:"cache_cleanup_interval"`
	DailyTips        duration `toml:"daily_tips_interval"`
	WeeklyReports    duration `toml:"weekly_reports_interval"`
	PriceRefresh     duration `toml:"price_refresh_interval"`
	GoalProgress     duration `toml:"goal_progress_interval"`
	ChamaReminders   duration `toml:"chama_reminders_interval"`
}

// RatesConfig seeds the KES/BTC rate cache.
type RatesConfig struct {
	// SeedKesBtc is the fallback KES-per-BTC rate used until the first
	// successful refresh.
	SeedKesBtc float64 `toml:"seed_kes_btc"`
}

// duration wraps time.Duration for TOML decoding of "5m"-style strings.
type duration struct {
	time.Duration
}

// UnmarshalText implements toml.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8980,
			Metrics: true,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Path:    defaultDBPath(),
		},
		Rates: RatesConfig{
			// Approximate KES per BTC; refreshed by the price job when a
			// feed is attached.
			SeedKesBtc: 8_500_000,
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "akiba.db"
	}
	return filepath.Join(home, ".akiba", "akiba.db")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".akiba", "config.toml")
}

// Load reads the config at path, layered over the defaults. A missing file
// is not an error — defaults apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Storage.Backend != "memory" && cfg.Storage.Backend != "sqlite" {
		return cfg, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return cfg, nil
}

// WriteDefault writes the default config to path, creating parent
// directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(DefaultConfig())
}
