package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/faize-ai/runner-agent/internal/agent"
	"github.com/faize-ai/runner-agent/internal/config"
	"github.com/faize-ai/runner-agent/internal/coordinator"
	"github.com/faize-ai/runner-agent/internal/hostinfo"
	"github.com/faize-ai/runner-agent/internal/provision"
	"github.com/faize-ai/runner-agent/internal/session"
)

// Version is stamped at build time with -ldflags "-X ...cmd.Version=..."
var Version = "dev"

var (
	debug   bool
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "runner-agent",
	Short: "Remote-access session agent for ephemeral CI hosts",
	Long: `runner-agent turns a CI host into a short-lived remote desktop and
shell session driven by an operator through a coordinator service.

Run the agent (reads TG_CHATID, WORKER_URL, SESSION_SECRET, ...):
  runner-agent
  runner-agent --env-file .env --debug

Inspect the last session on this host:
  runner-agent status
  runner-agent prune`,
	SilenceUsage:      true,
	Version:           Version,
	PersistentPreRunE: loadEnvFile,
	RunE:              runAgent,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file before reading configuration")
}

// loadEnvFile fills unset variables from --env-file, or from ./.env when it
// exists. Variables already in the environment win.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, debug)

	target := provision.DetectTarget(runtime.GOOS, provision.ExecRunner{})
	password := provision.NormalizePassword(target.Kind(), cfg.RemotePassword)

	state := session.NewState()
	store, err := session.NewStore(cfg.StateDir)
	if err != nil {
		logger.Warn("session snapshots disabled", "error", err)
	}

	client := coordinator.NewClient(coordinator.Options{
		BaseURL:           cfg.WorkerURL,
		Secret:            cfg.Secret,
		ChatID:            cfg.ChatID,
		RunID:             cfg.RunID,
		UserAgent:         "runner-agent/" + Version,
		HeartbeatInterval: cfg.HeartbeatInterval(),
	})

	ctrl := agent.New(agent.Settings{
		Language:        cfg.Language,
		Headless:        cfg.Headless(),
		Password:        password,
		MaxDuration:     cfg.MaxDurationMinutes,
		PollInterval:    cfg.PollInterval(),
		MonitorInterval: cfg.MonitorInterval(),
		GraceDelay:      agent.DefaultGraceDelay,
	}, agent.Deps{
		State:       state,
		Coordinator: client,
		Target:      target,
		Host:        hostinfo.New("", nil),
		Store:       store,
		Logger:      logger,
	})

	logger.Info("agent starting",
		"version", Version,
		"os", target.Kind().String(),
		"headless", cfg.Headless(),
		"max_minutes", cfg.MaxDurationMinutes,
		"run_id", cfg.RunID,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = ctrl.Run(ctx)
	if err != nil && ctx.Err() != nil {
		logger.Info("interrupted, leaving host running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent stopped: %w", err)
	}
	return nil
}
