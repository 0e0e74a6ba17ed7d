// Package config loads stockledger settings from config.yaml and
// STOCKLEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// STOCKLEDGER_DATABASE_PATH.
const EnvPrefix = "STOCKLEDGER"

// Config is the resolved device configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Device   DeviceConfig   `mapstructure:"device"`
	Watch    WatchConfig    `mapstructure:"watch"`
}

// DatabaseConfig locates the local ledger store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DeviceConfig identifies this device in the replicated ledger.
type DeviceConfig struct {
	// SyncID is stamped on every row written here.
	SyncID string `mapstructure:"sync_id" validate:"max=64"`
	// Operator is the default created_by for writes from this device.
	Operator string `mapstructure:"operator"`
}

// WatchConfig tunes the --watch commands.
type WatchConfig struct {
	// PollInterval is how often the database is checked for commits made by
	// other processes.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"min=10ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "stockledger.db"},
		Log:      LogConfig{Level: "info"},
		Watch:    WatchConfig{PollInterval: 500 * time.Millisecond},
	}
}

var keys = []string{
	"database.path",
	"log.level",
	"log.json",
	"device.sync_id",
	"device.operator",
	"watch.poll_interval",
}

// Load reads config.yaml from dir (if present) and applies environment
// overrides on top of Default. An empty dir skips the file lookup. A
// missing file is not an error; a malformed one is.
func Load(dir string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if dir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if v.IsSet("database.path") {
		cfg.Database.Path = v.GetString("database.path")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = strings.ToLower(v.GetString("log.level"))
	}
	if v.IsSet("log.json") {
		cfg.Log.JSON = v.GetBool("log.json")
	}
	if v.IsSet("device.sync_id") {
		cfg.Device.SyncID = v.GetString("device.sync_id")
	}
	if v.IsSet("device.operator") {
		cfg.Device.Operator = v.GetString("device.operator")
	}

	if v.IsSet("watch.poll_interval") {
		cfg.Watch.PollInterval = v.GetDuration("watch.poll_interval")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, len(ves))
	for i, fe := range ves {
		msgs[i] = fmt.Sprintf("%s failed %q", strings.ToLower(fe.Namespace()), fe.Tag())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
