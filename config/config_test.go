package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	t.Setenv("TOKEN", "")
	t.Setenv("VOICEDATABASE", "")
	path := writeConfig(t, "token: abc\nsweep_interval: 90s\nguild_id: \"123\"\n")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Token)
	assert.Equal(t, "123", cfg.GuildID)
	assert.Equal(t, 90*time.Second, cfg.SweepInterval)
	assert.Equal(t, 3*time.Minute, cfg.ViewTimeout)
	assert.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, "{user_displayname} 的頻道", cfg.DefaultTemplate)
	assert.True(t, cfg.Development())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TOKEN", "from-env")
	t.Setenv("VOICEDATABASE", "/tmp/voice.db")
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Token)
	assert.Equal(t, "/tmp/voice.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	t.Setenv("TOKEN", "")
	path := writeConfig(t, "token: abc\nlog_level: info\n")

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(v, fs)
	require.NoError(t, fs.Parse([]string{"--log-level=warn"}))

	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Token:           "abc",
			DatabasePath:    "x.db",
			SweepInterval:   time.Minute,
			ViewTimeout:     time.Minute,
			PromptCacheSize: 10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Token = "" }, wantErr: "token is required"},
		{name: "empty database", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: "database_path"},
		{name: "zero sweep", mutate: func(c *Config) { c.SweepInterval = 0 }, wantErr: "sweep_interval"},
		{name: "negative timeout", mutate: func(c *Config) { c.ViewTimeout = -time.Second }, wantErr: "view_timeout"},
		{name: "zero cache", mutate: func(c *Config) { c.PromptCacheSize = 0 }, wantErr: "prompt_cache_size"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
