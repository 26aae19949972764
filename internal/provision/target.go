// Package provision starts the remote-access tooling on the host and reads
// back the connection details an operator needs to reach it.
package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/faize-ai/runner-agent/internal/session"
)

// OSKind identifies which provisioning flow a host uses
type OSKind int

const (
	KindPosix OSKind = iota
	KindWindows
)

func (k OSKind) String() string {
	if k == KindWindows {
		return "windows"
	}
	return "posix"
}

// OSType is the value reported to the coordinator for this kind.
func (k OSKind) OSType() string {
	if k == KindWindows {
		return "windows"
	}
	return "ubuntu"
}

// ParseKind maps a user-supplied name to an OSKind
func ParseKind(name string) (OSKind, error) {
	switch name {
	case "windows":
		return KindWindows, nil
	case "posix", "linux", "ubuntu", "darwin":
		return KindPosix, nil
	default:
		return KindPosix, fmt.Errorf("unknown OS kind %q (want windows or posix)", name)
	}
}

// Target is one host flavour's way of bringing up remote access.
type Target interface {
	Kind() OSKind
	// Start launches the remote-desktop daemon (and terminal sharing where
	// supported) and returns once credentials are confirmed. The daemons
	// outlive the call.
	Start(ctx context.Context, password string) (session.Endpoints, error)
	// PowerOff asks the OS to shut down without waiting for it.
	PowerOff(ctx context.Context) error
}

// ProvisioningError describes why remote access could not be brought up
type ProvisioningError struct {
	Reason string
	Err    error
}

func (e *ProvisioningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// Retry and timing knobs shared by both targets
const (
	retryDelay      = 2 * time.Second
	commandTimeout  = 20 * time.Second
	displayTimeout  = 10 * time.Second
	killTimeout     = 5 * time.Second
	windowsIDPolls  = 8
	posixPassPolls  = 6
	posixIDPolls    = 10
	tmatePolls      = 20
	tmateSocketPath = "/tmp/tmate-runner-agent.sock"
)

// DetectTarget picks the flow for the given GOOS value.
func DetectTarget(goos string, runner Runner) Target {
	if goos == "windows" {
		return NewWindowsTarget(runner)
	}
	return NewPosixTarget(runner)
}
