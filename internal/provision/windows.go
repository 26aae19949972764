package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/faize-ai/runner-agent/internal/session"
)

const windowsRustDeskPath = `C:\Program Files\RustDesk\rustdesk.exe`

// WindowsTarget provisions RustDesk on a Windows host. Terminal sharing is
// not offered there.
type WindowsTarget struct {
	runner Runner
	delay  time.Duration
}

func NewWindowsTarget(runner Runner) *WindowsTarget {
	return &WindowsTarget{runner: runner, delay: retryDelay}
}

func (t *WindowsTarget) Kind() OSKind { return KindWindows }

func (t *WindowsTarget) Start(ctx context.Context, password string) (session.Endpoints, error) {
	rustdesk, err := t.runner.LookPath("rustdesk")
	if err != nil {
		if !t.runner.FileExists(windowsRustDeskPath) {
			return session.Endpoints{}, &ProvisioningError{Reason: "RustDesk executable not found"}
		}
		rustdesk = windowsRustDeskPath
	}

	// The service accepts the password before the UI is up; a failure here
	// surfaces as a missing ID below.
	_, _ = t.runOutput(ctx, rustdesk, "--password", password)

	var id string
	ok, err := pollUntil(ctx, windowsIDPolls, t.delay, func(ctx context.Context) bool {
		out, _ := t.runOutput(ctx, rustdesk, "--get-id")
		id = firstLine(out)
		return id != ""
	})
	if err != nil {
		return session.Endpoints{}, &ProvisioningError{Reason: "cancelled waiting for RustDesk ID", Err: err}
	}
	if !ok {
		return session.Endpoints{}, &ProvisioningError{Reason: "RustDesk ID not found"}
	}

	if err := t.runner.StartDetached(rustdesk); err != nil {
		return session.Endpoints{}, &ProvisioningError{Reason: "failed to launch RustDesk", Err: err}
	}

	return session.Endpoints{RemoteID: id, RemotePassword: password}, nil
}

func (t *WindowsTarget) PowerOff(ctx context.Context) error {
	if err := t.runner.StartDetached("shutdown", "/s", "/t", "0"); err != nil {
		return fmt.Errorf("failed to invoke shutdown: %w", err)
	}
	return nil
}

func (t *WindowsTarget) runOutput(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return t.runner.Output(ctx, name, args...)
}
