package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/faize-ai/runner-agent/internal/provision"
)

var passwordOS string

var passwordCmd = &cobra.Command{
	Use:   "password [raw]",
	Short: "Preview how a remote-desktop password is normalized",
	Long: `Print the password the agent would hand to RustDesk for the given raw
value (default: $RUSTDESK_PASSWORD). Non-alphanumeric characters are dropped;
POSIX hosts get exactly 8 characters, Windows hosts up to 32. An empty result
is replaced by a random password, so repeated runs differ.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPassword,
}

func init() {
	rootCmd.AddCommand(passwordCmd)
	passwordCmd.Flags().StringVar(&passwordOS, "os", runtime.GOOS, "target OS (windows, linux, darwin)")
}

func runPassword(cmd *cobra.Command, args []string) error {
	kind, err := provision.ParseKind(passwordOS)
	if err != nil {
		return err
	}

	raw := os.Getenv("RUSTDESK_PASSWORD")
	if len(args) == 1 {
		raw = args[0]
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), provision.NormalizePassword(kind, raw))
	return nil
}
