package provision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner executes the external tools. ExecRunner is the real implementation;
// tests substitute a scripted one.
type Runner interface {
	LookPath(file string) (string, error)
	FileExists(path string) bool
	// Output runs the command to completion and returns its stdout. A non-zero
	// exit is an error.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// StartDetached launches a long-running process and does not wait for it.
	StartDetached(name string, args ...string) error
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (ExecRunner) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (ExecRunner) StartDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	// Reap in the background so the child does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// firstLine returns the first non-blank line of out, trimmed.
func firstLine(out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}
	line, _, _ := strings.Cut(out, "\n")
	return strings.TrimSpace(line)
}
