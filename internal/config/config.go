package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// HeadlessPrefix marks chat identifiers of sessions that have no interactive
// command source, e.g. "web:<user id>".
const HeadlessPrefix = "web:"

// Config represents the agent configuration, sourced from the environment
type Config struct {
	ChatID             string `mapstructure:"chat_id"`
	WorkerURL          string `mapstructure:"worker_url"`
	Secret             string `mapstructure:"secret"`
	Language           string `mapstructure:"language"`
	RunID              string `mapstructure:"run_id"`
	RemotePassword     string `mapstructure:"remote_password"`
	HeartbeatSeconds   int    `mapstructure:"heartbeat_seconds"`
	PollSeconds        int    `mapstructure:"poll_seconds"`
	MonitorSeconds     int    `mapstructure:"monitor_seconds"`
	MaxDurationMinutes int    `mapstructure:"max_duration_minutes"`
	StateDir           string `mapstructure:"state_dir"`
	LogLevel           string `mapstructure:"log_level"`
}

// envBindings maps config keys to the environment variables CI workflows set
var envBindings = map[string]string{
	"chat_id":              "TG_CHATID",
	"worker_url":           "WORKER_URL",
	"secret":               "SESSION_SECRET",
	"language":             "USER_LANG",
	"run_id":               "GITHUB_RUN_ID",
	"remote_password":      "RUSTDESK_PASSWORD",
	"heartbeat_seconds":    "RUNNER_HEARTBEAT_SECONDS",
	"poll_seconds":         "RUNNER_POLL_SECONDS",
	"monitor_seconds":      "RUNNER_MONITOR_SECONDS",
	"max_duration_minutes": "RUNNER_MAX_DURATION_MINUTES",
	"state_dir":            "RUNNER_STATE_DIR",
	"log_level":            "RUNNER_LOG_LEVEL",
}

// ConfigurationError reports required settings that are missing or invalid.
// It is fatal at startup.
type ConfigurationError struct {
	Missing []string // environment variable names
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigurationError{Invalid: []string{err.Error()}}
	}

	cfg.Language = strings.ToLower(strings.TrimSpace(cfg.Language))
	cfg.WorkerURL = strings.TrimRight(strings.TrimSpace(cfg.WorkerURL), "/")

	stateDir, err := homedir.Expand(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand state directory: %w", err)
	}
	cfg.StateDir = stateDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StateDir resolves only the snapshot directory. Inspection commands use it
// so they work without the agent's required settings.
func StateDir() (string, error) {
	v := viper.New()
	setDefaults(v)
	if err := v.BindEnv("state_dir", envBindings["state_dir"]); err != nil {
		return "", fmt.Errorf("failed to bind %s: %w", envBindings["state_dir"], err)
	}

	dir, err := homedir.Expand(v.GetString("state_dir"))
	if err != nil {
		return "", fmt.Errorf("failed to expand state directory: %w", err)
	}
	return dir, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("language", "en")
	v.SetDefault("heartbeat_seconds", 60)
	v.SetDefault("poll_seconds", 2)
	v.SetDefault("monitor_seconds", 30)
	v.SetDefault("max_duration_minutes", 360)
	v.SetDefault("state_dir", "~/.runner-agent")
	v.SetDefault("log_level", "info")
}

// Validate checks required settings and numeric ranges
func (c *Config) Validate() error {
	cerr := &ConfigurationError{}

	if strings.TrimSpace(c.ChatID) == "" {
		cerr.Missing = append(cerr.Missing, envBindings["chat_id"])
	}
	if c.WorkerURL == "" {
		cerr.Missing = append(cerr.Missing, envBindings["worker_url"])
	}
	if c.Secret == "" {
		cerr.Missing = append(cerr.Missing, envBindings["secret"])
	}

	for key, val := range map[string]int{
		"heartbeat_seconds":    c.HeartbeatSeconds,
		"poll_seconds":         c.PollSeconds,
		"monitor_seconds":      c.MonitorSeconds,
		"max_duration_minutes": c.MaxDurationMinutes,
	} {
		if val <= 0 {
			cerr.Invalid = append(cerr.Invalid, envBindings[key])
		}
	}
	sort.Strings(cerr.Invalid)

	if len(cerr.Missing) == 0 && len(cerr.Invalid) == 0 {
		return nil
	}
	return cerr
}

// Headless reports whether the session has no interactive operator and must
// start on its own.
func (c *Config) Headless() bool {
	return strings.HasPrefix(c.ChatID, HeadlessPrefix)
}

// HeartbeatInterval returns the minimum spacing between heartbeats
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// PollInterval returns the pause between coordinator polls
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// MonitorInterval returns the pause between expiry checks
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorSeconds) * time.Second
}
