// Package config loads MioEngine's TOML configuration and environment
// secrets.
//
// File values can be overridden by MIO_-prefixed environment variables
// (MIO_PARAMS_PREFIX overrides params.prefix) and by bound command-line
// flags. Secrets never live in the file: the bot token and the archive
// key come from MIO_TOKEN and MIO_ARCHIVE_KEY.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sedorikku1949/MioEngine/internal/state"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MIO"

// DefaultPath is read when no --config flag is given.
const DefaultPath = "config.toml"

// Config is the full file configuration.
type Config struct {
	Client   ClientConfig   `mapstructure:"client"`
	Params   ParamsConfig   `mapstructure:"params"`
	Presence PresenceConfig `mapstructure:"presence"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Security SecurityConfig `mapstructure:"security"`
	I18n     I18nConfig     `mapstructure:"i18n"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Log      LogConfig      `mapstructure:"log"`
}

// ClientConfig describes the running build.
type ClientConfig struct {
	Version     string `mapstructure:"version"`
	BuildType   string `mapstructure:"build_type"`
	Dev         bool   `mapstructure:"dev"`
	Debug       bool   `mapstructure:"debug"`
	Maintenance bool   `mapstructure:"maintenance"`
}

// StatusEntry is one presence line as written in the file.
type StatusEntry struct {
	StatusType string `mapstructure:"status_type"`
	Message    string `mapstructure:"message"`
}

// Status converts the entry. Unrecognised types become ActivityUnknown.
func (e StatusEntry) Status() state.Status {
	return state.Status{Message: e.Message, Kind: state.ParseActivityKind(e.StatusType)}
}

// ParamsConfig holds the command prefix and the rotation list.
type ParamsConfig struct {
	Prefix string `mapstructure:"prefix"`
	// StatusTime is the rotation interval in seconds.
	StatusTime int `mapstructure:"status_time"`
	// AutoStatus is accepted for compatibility; rotation always runs.
	AutoStatus bool          `mapstructure:"auto_status"`
	Status     []StatusEntry `mapstructure:"status"`
}

// PresenceConfig holds the override statuses.
type PresenceConfig struct {
	DevStatus         StatusEntry `mapstructure:"dev_status"`
	MaintenanceStatus StatusEntry `mapstructure:"maintenance_status"`
	DebugStatus       StatusEntry `mapstructure:"debug_status"`
	StreamingURL      string      `mapstructure:"streaming_url"`
}

// MonitorConfig tunes the latency monitor.
type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	WarnThreshold time.Duration `mapstructure:"warn_threshold"`
}

// SecurityConfig controls the encrypted archive.
type SecurityConfig struct {
	RewriteArchiveIfInvalid bool   `mapstructure:"rewrite_archive_if_invalid"`
	AutoSaveArchive         bool   `mapstructure:"auto_save_archive"`
	ArchivePath             string `mapstructure:"archive_path"`
	AutosaveSchedule        string `mapstructure:"autosave_schedule"`
}

// I18nConfig locates the locale files.
type I18nConfig struct {
	LocalesDir    string `mapstructure:"locales_dir"`
	DefaultLocale string `mapstructure:"default_locale"`
}

// GatewayConfig sizes the gateway connection.
type GatewayConfig struct {
	ShardCount int `mapstructure:"shard_count"`
}

// AdminConfig configures the admin HTTP surface. An empty Listen disables it.
type AdminConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig configures logging. An empty level means debug in dev mode
// and info otherwise.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used for every key the file omits.
func Default() Config {
	return Config{
		Client: ClientConfig{
			Version:   "0.1.0",
			BuildType: "release",
		},
		Params: ParamsConfig{
			Prefix:     "m!",
			StatusTime: 30,
			AutoStatus: true,
		},
		Presence: PresenceConfig{
			DevStatus:         StatusEntry{StatusType: "watching", Message: "🔧 En développement"},
			MaintenanceStatus: StatusEntry{StatusType: "watching", Message: "🚧 En maintenance"},
			DebugStatus:       StatusEntry{StatusType: "watching", Message: "🐛 Debug mode"},
			StreamingURL:      "https://www.twitch.tv/mioengine",
		},
		Monitor: MonitorConfig{
			Interval:      10 * time.Second,
			WarnThreshold: 200 * time.Millisecond,
		},
		Security: SecurityConfig{
			RewriteArchiveIfInvalid: false,
			AutoSaveArchive:         true,
			ArchivePath:             "data/archive.mefs",
			AutosaveSchedule:        "@every 5m",
		},
		I18n: I18nConfig{
			LocalesDir:    "locales",
			DefaultLocale: "fr",
		},
		Gateway: GatewayConfig{ShardCount: 1},
		Admin:   AdminConfig{Listen: "127.0.0.1:7878"},
		Log:     LogConfig{Format: "console"},
	}
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"prefix":       "params.prefix",
	"dev":          "client.dev",
	"debug":        "client.debug",
	"maintenance":  "client.maintenance",
	"shards":       "gateway.shard_count",
	"admin-listen": "admin.listen",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"archive":      "security.archive_path",
}

// Load reads the TOML file at path (DefaultPath when empty), applies
// environment overrides and any of flags that were bound, and validates
// the result. A missing file is an error only when path was given.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) || explicit {
			return Config{}, fmt.Errorf("config file %q: %w", path, err)
		}
	} else {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("client.version", d.Client.Version)
	v.SetDefault("client.build_type", d.Client.BuildType)
	v.SetDefault("client.dev", d.Client.Dev)
	v.SetDefault("client.debug", d.Client.Debug)
	v.SetDefault("client.maintenance", d.Client.Maintenance)
	v.SetDefault("params.prefix", d.Params.Prefix)
	v.SetDefault("params.status_time", d.Params.StatusTime)
	v.SetDefault("params.auto_status", d.Params.AutoStatus)
	v.SetDefault("presence.dev_status.status_type", d.Presence.DevStatus.StatusType)
	v.SetDefault("presence.dev_status.message", d.Presence.DevStatus.Message)
	v.SetDefault("presence.maintenance_status.status_type", d.Presence.MaintenanceStatus.StatusType)
	v.SetDefault("presence.maintenance_status.message", d.Presence.MaintenanceStatus.Message)
	v.SetDefault("presence.debug_status.status_type", d.Presence.DebugStatus.StatusType)
	v.SetDefault("presence.debug_status.message", d.Presence.DebugStatus.Message)
	v.SetDefault("presence.streaming_url", d.Presence.StreamingURL)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.warn_threshold", d.Monitor.WarnThreshold)
	v.SetDefault("security.rewrite_archive_if_invalid", d.Security.RewriteArchiveIfInvalid)
	v.SetDefault("security.auto_save_archive", d.Security.AutoSaveArchive)
	v.SetDefault("security.archive_path", d.Security.ArchivePath)
	v.SetDefault("security.autosave_schedule", d.Security.AutosaveSchedule)
	v.SetDefault("i18n.locales_dir", d.I18n.LocalesDir)
	v.SetDefault("i18n.default_locale", d.I18n.DefaultLocale)
	v.SetDefault("gateway.shard_count", d.Gateway.ShardCount)
	v.SetDefault("admin.listen", d.Admin.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate reports every problem in cfg at once.
func Validate(cfg Config) error {
	var errs []error
	if strings.TrimSpace(cfg.Params.Prefix) == "" {
		errs = append(errs, errors.New("params.prefix must not be empty"))
	}
	if len(cfg.Params.Status) == 0 {
		errs = append(errs, errors.New("params.status must contain at least one entry"))
	}
	if cfg.Params.StatusTime <= 0 {
		errs = append(errs, fmt.Errorf("params.status_time must be positive, got %d", cfg.Params.StatusTime))
	}
	if cfg.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must be positive, got %s", cfg.Monitor.Interval))
	}
	if cfg.Monitor.WarnThreshold <= 0 {
		errs = append(errs, fmt.Errorf("monitor.warn_threshold must be positive, got %s", cfg.Monitor.WarnThreshold))
	}
	if cfg.Gateway.ShardCount < 1 {
		errs = append(errs, fmt.Errorf("gateway.shard_count must be at least 1, got %d", cfg.Gateway.ShardCount))
	}
	if cfg.Security.ArchivePath == "" {
		errs = append(errs, errors.New("security.archive_path must not be empty"))
	}
	if cfg.Security.AutoSaveArchive {
		if _, err := cron.ParseStandard(cfg.Security.AutosaveSchedule); err != nil {
			errs = append(errs, fmt.Errorf("security.autosave_schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}

// UnknownStatuses returns the rotation entries whose type is not
// recognised. They are kept and skipped at rotation time.
func (c Config) UnknownStatuses() []StatusEntry {
	var out []StatusEntry
	for _, e := range c.Params.Status {
		if e.Status().Kind == state.ActivityUnknown {
			out = append(out, e)
		}
	}
	return out
}

// RotationInterval returns params.status_time as a duration.
func (c Config) RotationInterval() time.Duration {
	return time.Duration(c.Params.StatusTime) * time.Second
}

// StateOptions converts the configuration into state construction options.
func (c Config) StateOptions(processStart time.Time) state.Options {
	statuses := make([]state.Status, 0, len(c.Params.Status))
	for _, e := range c.Params.Status {
		statuses = append(statuses, e.Status())
	}
	return state.Options{
		Prefix:            c.Params.Prefix,
		Dev:               c.Client.Dev,
		Debug:             c.Client.Debug,
		Maintenance:       c.Client.Maintenance,
		Statuses:          statuses,
		DevStatus:         c.Presence.DevStatus.Status(),
		MaintenanceStatus: c.Presence.MaintenanceStatus.Status(),
		DebugStatus:       c.Presence.DebugStatus.Status(),
		StreamingURL:      c.Presence.StreamingURL,
		ProcessStart:      processStart,
	}
}

// LogLevel resolves the effective log level.
func (c Config) LogLevel() string {
	if c.Log.Level != "" {
		return c.Log.Level
	}
	if c.Client.Dev || c.Client.Debug {
		return "debug"
	}
	return "info"
}

// Secrets are read from the environment only.
type Secrets struct {
	Token      string `envconfig:"TOKEN"`
	ArchiveKey string `envconfig:"ARCHIVE_KEY"`
}

// LoadSecrets reads MIO_TOKEN and MIO_ARCHIVE_KEY.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return Secrets{}, fmt.Errorf("load secrets: %w", err)
	}
	return s, nil
}
