package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test. Viper treats empty variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TG_CHATID", "123456")
	t.Setenv("WORKER_URL", "https://coordinator.example.com/")
	t.Setenv("SESSION_SECRET", "s3cret")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "123456", cfg.ChatID)
	assert.Equal(t, "https://coordinator.example.com", cfg.WorkerURL, "trailing slash trimmed")
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, 60, cfg.HeartbeatSeconds)
	assert.Equal(t, 2, cfg.PollSeconds)
	assert.Equal(t, 30, cfg.MonitorSeconds)
	assert.Equal(t, 360, cfg.MaxDurationMinutes)
	assert.Equal(t, "info", cfg.LogLevel)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".runner-agent"), cfg.StateDir)

	assert.Equal(t, 60*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval())
	assert.False(t, cfg.Headless())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("USER_LANG", " EN ")
	t.Setenv("GITHUB_RUN_ID", "987")
	t.Setenv("RUSTDESK_PASSWORD", "hunter2!")
	t.Setenv("RUNNER_HEARTBEAT_SECONDS", "15")
	t.Setenv("RUNNER_POLL_SECONDS", "1")
	t.Setenv("RUNNER_MONITOR_SECONDS", "5")
	t.Setenv("RUNNER_MAX_DURATION_MINUTES", "120")
	t.Setenv("RUNNER_STATE_DIR", "/var/lib/runner-agent")
	t.Setenv("RUNNER_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, "987", cfg.RunID)
	assert.Equal(t, "hunter2!", cfg.RemotePassword, "normalization happens once the OS is known")
	assert.Equal(t, 15, cfg.HeartbeatSeconds)
	assert.Equal(t, 1, cfg.PollSeconds)
	assert.Equal(t, 5, cfg.MonitorSeconds)
	assert.Equal(t, 120, cfg.MaxDurationMinutes)
	assert.Equal(t, "/var/lib/runner-agent", cfg.StateDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingRequired(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	require.Error(t, err)

	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.ElementsMatch(t, []string{"TG_CHATID", "WORKER_URL", "SESSION_SECRET"}, cerr.Missing)
	assert.Contains(t, err.Error(), "TG_CHATID")
}

func TestLoadInvalidNumber(t *testing.T) {
	clearEnv(t)
	setRequired(t)
	t.Setenv("RUNNER_MAX_DURATION_MINUTES", "six hours")

	_, err := Load()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.NotEmpty(t, cerr.Invalid)
}

func TestValidate(t *testing.T) {
	valid := Config{
		ChatID:             "1",
		WorkerURL:          "https://x",
		Secret:             "s",
		HeartbeatSeconds:   60,
		PollSeconds:        2,
		MonitorSeconds:     30,
		MaxDurationMinutes: 360,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.PollSeconds = 0
	bad.MaxDurationMinutes = -1
	err := bad.Validate()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"RUNNER_MAX_DURATION_MINUTES", "RUNNER_POLL_SECONDS"}, cerr.Invalid)
	assert.Empty(t, cerr.Missing)
}

func TestHeadless(t *testing.T) {
	tests := []struct {
		chatID string
		want   bool
	}{
		{chatID: "web:42", want: true},
		{chatID: "web:", want: true},
		{chatID: "123456", want: false},
		{chatID: "-100123", want: false},
		{chatID: "WEB:42", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.chatID, func(t *testing.T) {
			c := &Config{ChatID: tt.chatID}
			assert.Equal(t, tt.want, c.Headless())
		})
	}
}

func TestStateDir(t *testing.T) {
	clearEnv(t)

	dir, err := StateDir()
	require.NoError(t, err)
	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".runner-agent"), dir)

	t.Setenv("RUNNER_STATE_DIR", "/srv/agent")
	dir, err = StateDir()
	require.NoError(t, err)
	assert.Equal(t, "/srv/agent", dir)
}
