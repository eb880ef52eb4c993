package config

import (
	"fmt"
	"strings"

	"errors"
	"os"

	"github.com/spf13/viper"
)

// Config holds all application settings loaded from file and environment variables.
// Struct tags are used by the Viper mapstructure decoder.
type Config struct {
	Worker   Worker   `mapstructure:"worker"`
	Terminal Terminal `mapstructure:"terminal"`
	SSH      SSH      `mapstructure:"ssh"`
	Hosts    Hosts    `mapstructure:"hosts"`
	History  History  `mapstructure:"history"`
	Audit    Audit    `mapstructure:"audit"`
}

// Worker configures the command-channel worker process.
type Worker struct {
	Addr     string `mapstructure:"addr"`
	Key      string `mapstructure:"key"`
	Spawn    bool   `mapstructure:"spawn"`
	Command  string `mapstructure:"command"`
	SettleMs int    `mapstructure:"settle_ms"`
}

// Terminal configures the interactive session's pty and render loop.
type Terminal struct {
	Term           string `mapstructure:"term"`
	Cols           int    `mapstructure:"cols"`
	Rows           int    `mapstructure:"rows"`
	PumpIntervalMs int    `mapstructure:"pump_interval_ms"`
}

type SSH struct {
	DialTimeoutSec int `mapstructure:"dial_timeout_sec"`
}

type Hosts struct {
	Path string `mapstructure:"path"`
}

type History struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Audit struct {
	Enabled     bool   `mapstructure:"enabled"`
	StoragePath string `mapstructure:"storage_path"`
}

// Load reads configuration from a file and allows environment variables to override any value.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("worker.addr", "PORTSIDE_WORKER_ADDR")
	v.BindEnv("worker.key", "PORTSIDE_WORKER_KEY")
	v.BindEnv("terminal.term", "PORTSIDE_TERM")
	v.BindEnv("hosts.path", "PORTSIDE_HOSTS")
	v.BindEnv("history.path", "PORTSIDE_HISTORY")
	v.BindEnv("audit.storage_path", "PORTSIDE_AUDIT_STORAGE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// isNotFound returns true when err indicates the config file does not exist.
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	var pathErr *os.PathError
	return errors.As(err, &pathErr) && os.IsNotExist(pathErr)
}

// setDefaults defines baseline values for all configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.addr", "127.0.0.1:6000")
	v.SetDefault("worker.key", "ssh")
	v.SetDefault("worker.spawn", false)
	v.SetDefault("worker.command", "portside-worker")
	v.SetDefault("worker.settle_ms", 100)
	v.SetDefault("terminal.term", "xterm")
	v.SetDefault("terminal.cols", 200)
	v.SetDefault("terminal.rows", 24)
	v.SetDefault("terminal.pump_interval_ms", 10)
	v.SetDefault("ssh.dial_timeout_sec", 10)
	v.SetDefault("hosts.path", "saved_hosts.json")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "portside_history.db")
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.storage_path", "./recordings")
}
