package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/faize-ai/runner-agent/internal/config"
	"github.com/faize-ai/runner-agent/internal/session"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"ps"},
	Short:   "Show the last recorded session on this host",
	Long: `Show the session snapshot the agent last wrote to its state directory
(RUNNER_STATE_DIR, default ~/.runner-agent). Passwords are never stored.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func openStore() (*session.Store, error) {
	dir, err := config.StateDir()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access session store: %w", err)
	}
	return store, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	snap, err := store.Load()
	if errors.Is(err, session.ErrNoSnapshot) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No session recorded.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	row := func(k, v string) { _, _ = fmt.Fprintf(w, "%s\t%s\n", k, v) }

	row("AGENT", snap.AgentID)
	row("PHASE", string(snap.Phase))
	row("DURATION", fmt.Sprintf("%dm", snap.Duration))
	if snap.StartTime != nil {
		row("STARTED", snap.StartTime.Local().Format("2006-01-02 15:04:05"))
		if snap.Phase == session.PhaseActive {
			left := time.Duration(snap.Duration)*time.Minute - time.Since(*snap.StartTime)
			row("REMAINING", fmt.Sprintf("%dm", max(0, int(left.Minutes()))))
		}
	}
	if e := snap.Endpoints; e != nil {
		row("REMOTE ID", e.RemoteID)
		if e.ShellSSH != "" {
			row("SSH", e.ShellSSH)
		}
		if e.ShellWeb != "" {
			row("WEB", e.ShellWeb)
		}
	}
	if snap.Error != "" {
		row("ERROR", snap.Error)
	}
	row("UPDATED", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	return w.Flush()
}
