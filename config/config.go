package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const DefaultDatabasePath = "temp_voice.db"

// Config holds everything the bot reads at start up. It is built once in main and
// handed to every component.
type Config struct {
	Token     string `mapstructure:"token"`
	BotStatus string `mapstructure:"bot_status"`
	// GuildID scopes slash command registration; empty registers globally.
	GuildID string `mapstructure:"guild_id"`

	DatabasePath string `mapstructure:"database_path"`

	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`

	// DefaultTemplate names children of parents without a template.
	DefaultTemplate string        `mapstructure:"default_template"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	ViewTimeout     time.Duration `mapstructure:"view_timeout"`
	PromptCacheSize int           `mapstructure:"prompt_cache_size"`

	// MetricsAddr is the listen address for /metrics; empty disables it.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func (c *Config) Development() bool {
	return c.Environment != "production"
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required (config key token or env TOKEN)")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", c.SweepInterval)
	}
	if c.ViewTimeout <= 0 {
		return fmt.Errorf("view_timeout must be positive, got %s", c.ViewTimeout)
	}
	if c.PromptCacheSize <= 0 {
		return fmt.Errorf("prompt_cache_size must be positive, got %d", c.PromptCacheSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("token", "")
	v.SetDefault("bot_status", "temporary voice channels")
	v.SetDefault("guild_id", "")
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")
	v.SetDefault("default_template", "{user_displayname} 的頻道")
	v.SetDefault("sweep_interval", 5*time.Minute)
	v.SetDefault("view_timeout", 3*time.Minute)
	v.SetDefault("prompt_cache_size", 1024)
	v.SetDefault("metrics_addr", ":9090")
}

// BindFlags registers the command line flags and binds them to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.String("config", "", "path to the config file (default ./config.yaml)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("database", "", "path to the sqlite database")

	_ = v.BindPFlag("log_level", fs.Lookup("log-level"))
	_ = v.BindPFlag("database_path", fs.Lookup("database"))
}

// Load reads .env, the config file (optional unless configFile is given) and the environment.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	setDefaults(v)

	v.SetEnvPrefix("TEMPVOICE")
	v.AutomaticEnv()
	_ = v.BindEnv("token", "TEMPVOICE_TOKEN", "TOKEN")
	_ = v.BindEnv("database_path", "TEMPVOICE_DATABASE_PATH", "VOICEDATABASE")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the re-read config whenever the config file changes.
// Invalid edits are logged and skipped.
func Watch(v *viper.Viper, log *zap.SugaredLogger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Infow("Config file changed", "file", e.Name, "op", e.Op.String())
		cfg, err := decode(v)
		if err != nil {
			log.Warnw("Ignoring invalid config change", "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
