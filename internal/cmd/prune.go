package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faize-ai/runner-agent/internal/session"
)

var pruneForce bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove the recorded session snapshot",
	Long: `Remove the session snapshot from the state directory.

Snapshots of an active or provisioning session are kept unless --force is
given, since a running agent will rewrite them.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVarP(&pruneForce, "force", "f", false, "remove the snapshot even if the session looks live")
}

func runPrune(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	snap, err := store.Load()
	switch {
	case errors.Is(err, session.ErrNoSnapshot):
		_, _ = fmt.Fprintln(out, "No session to remove.")
		return nil
	case err != nil:
		// Unreadable snapshots are removed regardless.
		_, _ = fmt.Fprintf(out, "Warning: unreadable snapshot: %v\n", err)
	case !pruneForce && (snap.Phase == session.PhaseActive || snap.Phase == session.PhaseProvisioning):
		_, _ = fmt.Fprintf(out, "Session %s is %s. Use --force to remove it.\n", snap.AgentID, snap.Phase)
		return nil
	}

	if err := store.Delete(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Removed session snapshot.")
	return nil
}
