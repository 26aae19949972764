package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/faize-ai/runner-agent/internal/session"
)

// PosixTarget provisions RustDesk plus best-effort tmate on Linux and other
// Unix hosts.
type PosixTarget struct {
	runner Runner
	delay  time.Duration
}

func NewPosixTarget(runner Runner) *PosixTarget {
	return &PosixTarget{runner: runner, delay: retryDelay}
}

func (t *PosixTarget) Kind() OSKind { return KindPosix }

func (t *PosixTarget) Start(ctx context.Context, password string) (session.Endpoints, error) {
	id, err := t.startRustDesk(ctx, password)
	if err != nil {
		return session.Endpoints{}, err
	}

	ssh, web, err := t.startTmate(ctx)
	if err != nil {
		return session.Endpoints{}, &ProvisioningError{Reason: "cancelled waiting for tmate", Err: err}
	}

	return session.Endpoints{
		RemoteID:       id,
		RemotePassword: password,
		ShellSSH:       ssh,
		ShellWeb:       web,
	}, nil
}

func (t *PosixTarget) startRustDesk(ctx context.Context, password string) (string, error) {
	rustdesk, err := t.runner.LookPath("rustdesk")
	if err != nil {
		return "", &ProvisioningError{Reason: "rustdesk is not installed", Err: err}
	}

	// The desktop app must be up before the password is accepted, and the
	// first attempts can race with its initialisation.
	if err := t.runner.StartDetached(rustdesk); err != nil {
		return "", &ProvisioningError{Reason: "failed to launch RustDesk", Err: err}
	}
	if err := sleep(ctx, t.delay); err != nil {
		return "", &ProvisioningError{Reason: "cancelled while RustDesk started", Err: err}
	}

	ok, err := pollUntil(ctx, posixPassPolls, t.delay, func(ctx context.Context) bool {
		_, err := t.runOutput(ctx, commandTimeout, rustdesk, "--password", password)
		return err == nil
	})
	if err != nil {
		return "", &ProvisioningError{Reason: "cancelled setting RustDesk password", Err: err}
	}
	if !ok {
		return "", &ProvisioningError{Reason: "failed to set RustDesk password"}
	}

	var id string
	ok, err = pollUntil(ctx, posixIDPolls, t.delay, func(ctx context.Context) bool {
		out, _ := t.runOutput(ctx, commandTimeout, rustdesk, "--get-id")
		id = firstLine(out)
		return id != ""
	})
	if err != nil {
		return "", &ProvisioningError{Reason: "cancelled waiting for RustDesk ID", Err: err}
	}
	if !ok {
		return "", &ProvisioningError{Reason: "RustDesk ID not found"}
	}
	return id, nil
}

// startTmate returns empty strings when tmate is unavailable or never reports
// an address. Only cancellation is an error.
func (t *PosixTarget) startTmate(ctx context.Context) (string, string, error) {
	tmate, err := t.runner.LookPath("tmate")
	if err != nil {
		return "", "", nil
	}

	_, _ = t.runOutput(ctx, killTimeout, tmate, "-S", tmateSocketPath, "kill-server")
	if err := t.runner.StartDetached(tmate, "-S", tmateSocketPath, "new-session", "-d"); err != nil {
		return "", "", nil
	}

	var ssh, web string
	_, err = pollUntil(ctx, tmatePolls, t.delay, func(ctx context.Context) bool {
		sshOut, _ := t.runOutput(ctx, displayTimeout, tmate, "-S", tmateSocketPath, "display", "-p", "#{tmate_ssh}")
		webOut, _ := t.runOutput(ctx, displayTimeout, tmate, "-S", tmateSocketPath, "display", "-p", "#{tmate_web}")
		ssh = firstLine(sshOut)
		web = firstLine(webOut)
		return ssh != ""
	})
	if err != nil {
		return "", "", err
	}
	return ssh, web, nil
}

func (t *PosixTarget) PowerOff(ctx context.Context) error {
	// CI runners grant the agent passwordless sudo.
	if err := t.runner.StartDetached("sudo", "shutdown", "now"); err != nil {
		return fmt.Errorf("failed to invoke shutdown: %w", err)
	}
	return nil
}

func (t *PosixTarget) runOutput(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.runner.Output(ctx, name, args...)
}
