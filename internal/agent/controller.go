// Package agent drives the session lifecycle: it turns coordinator commands
// into state transitions, runs provisioning in the background, watches for
// expiry and tears the host down at the end.
//
// Phases move IDLE -> PROVISIONING -> ACTIVE -> STOPPED. A kill command
// reaches STOPPED from any phase. Only one provisioning attempt is ever made
// per process; if it fails the session stays latched until the host is
// recycled.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/faize-ai/runner-agent/internal/coordinator"
	"github.com/faize-ai/runner-agent/internal/hostinfo"
	"github.com/faize-ai/runner-agent/internal/provision"
	"github.com/faize-ai/runner-agent/internal/session"
)

const (
	extendMinutes = 30

	DefaultPollInterval    = 2 * time.Second
	DefaultMonitorInterval = 30 * time.Second
	DefaultGraceDelay      = 2 * time.Second
)

// Coordinator is the subset of the coordinator client the controller needs
type Coordinator interface {
	Register(ctx context.Context) error
	Heartbeat(ctx context.Context, force bool) error
	Poll(ctx context.Context) (coordinator.Update, bool, error)
	ReportEndpoint(ctx context.Context, report coordinator.EndpointReport) error
	SendMessage(ctx context.Context, text string, markup *coordinator.Keyboard) error
	EndSession(ctx context.Context) error
}

// HostProbe reports host facts for operator notices
type HostProbe interface {
	Collect(ctx context.Context) hostinfo.Details
	Sample(ctx context.Context) (hostinfo.Usage, error)
}

// Settings are the policy knobs of a controller
type Settings struct {
	Language        string
	Headless        bool
	Password        string // already normalized for the target
	MaxDuration     int    // minutes; ceiling for selection and every extend
	PollInterval    time.Duration
	MonitorInterval time.Duration
	GraceDelay      time.Duration // pause between the end-session notice and power-off
}

// Deps are the collaborators of a controller. Store and Logger are optional.
type Deps struct {
	State       *session.State
	Coordinator Coordinator
	Target      provision.Target
	Host        HostProbe
	Store       *session.Store
	Logger      *slog.Logger
}

// Controller owns the session state machine
type Controller struct {
	settings Settings
	state    *session.State
	coord    Coordinator
	target   provision.Target
	host     HostProbe
	store    *session.Store
	log      *slog.Logger

	wg      sync.WaitGroup // the provisioning goroutine
	stopped chan struct{}  // closed by the first Shutdown
	done    chan struct{}  // closed once that Shutdown has powered off
}

// New creates a controller. Zero intervals take their defaults.
func New(settings Settings, deps Deps) *Controller {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	if settings.MonitorInterval <= 0 {
		settings.MonitorInterval = DefaultMonitorInterval
	}
	if settings.GraceDelay < 0 {
		settings.GraceDelay = 0
	}
	if settings.Language == "" {
		settings.Language = "en"
	}

	state := deps.State
	if state == nil {
		state = session.NewState()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		settings: settings,
		state:    state,
		coord:    deps.Coordinator,
		target:   deps.Target,
		host:     deps.Host,
		store:    deps.Store,
		log:      logger.With("session", state.ID()),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State exposes the session record, mainly for status reporting
func (c *Controller) State() *session.State {
	return c.state
}

// Phase returns the current lifecycle phase
func (c *Controller) Phase() session.Phase {
	return c.state.Phase()
}

// Wait blocks until the provisioning goroutine, if any, has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Run is the agent's main loop. It registers the host, greets the operator
// (or starts straight away when headless) and then alternates heartbeats
// and command polls until the session stops or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.coord.Register(ctx); err != nil {
		c.log.Warn("failed to register runner", "error", err)
	}

	if c.settings.Headless {
		c.autoStart(ctx)
	} else {
		c.notify(ctx, c.msg(msgStart), durationKeyboard(c.settings.MaxDuration))
	}

	if err := c.coord.Heartbeat(ctx, true); err != nil {
		c.log.Warn("initial heartbeat failed", "error", err)
	}

	for c.state.Active() {
		if err := c.coord.Heartbeat(ctx, false); err != nil {
			c.log.Debug("heartbeat failed", "error", err)
		}

		u, ok, err := c.coord.Poll(ctx)
		switch {
		case err != nil:
			c.log.Debug("poll failed", "error", err)
		case ok:
			c.HandleUpdate(ctx, u)
		}

		if err := c.sleep(ctx, c.settings.PollInterval); err != nil {
			return err
		}
	}

	// Expiry shuts down from the monitor goroutine; the process must not
	// exit before the host has been told to power off.
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.log.Info("session stopped")
	return nil
}

// HandleUpdate dispatches one inbound coordinator command.
func (c *Controller) HandleUpdate(ctx context.Context, u coordinator.Update) {
	c.log.Info("command received", "type", u.CommandType, "payload", maskPayload(u.Payload))

	switch u.CommandType {
	case coordinator.CommandText:
		c.handleText(ctx, u.Payload)
	case coordinator.CommandCallback:
		c.handleCallback(ctx, u.Payload)
	}
}

// maskPayload hides digit-only payloads, which are usually PINs or codes.
func maskPayload(p string) string {
	if p == "" {
		return p
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return p
		}
	}
	return "***"
}

func (c *Controller) handleText(ctx context.Context, payload string) {
	switch strings.TrimSpace(payload) {
	case "/panel", "/menu":
		c.notify(ctx, c.msg(msgPanel), controlKeyboard())
	}
	// Anything else is dropped without a reply so secrets typed into the
	// chat are never echoed back.
}

func (c *Controller) handleCallback(ctx context.Context, data string) {
	switch {
	case strings.HasPrefix(data, cbTimePrefix):
		minutes, err := strconv.Atoi(strings.TrimPrefix(data, cbTimePrefix))
		if err != nil || minutes <= 0 {
			c.log.Debug("ignoring malformed duration", "payload", data)
			return
		}
		c.SelectDuration(ctx, minutes)
	case data == cbExtend:
		c.Extend(ctx)
	case data == cbInfo:
		c.Info(ctx)
	case data == cbKill:
		c.notify(ctx, c.msg(msgShutdown), nil)
		c.Shutdown(ctx)
	default:
		c.log.Debug("ignoring unknown callback")
	}
}

// SelectDuration handles a duration choice: IDLE -> PROVISIONING.
func (c *Controller) SelectDuration(ctx context.Context, minutes int) bool {
	if minutes > c.settings.MaxDuration {
		c.notify(ctx, c.maxLimitText(), nil)
		return false
	}
	if !c.state.BeginSelection(minutes) {
		c.notify(ctx, c.msg(msgAlreadyStarting), nil)
		return false
	}

	c.log.Info("duration selected", "minutes", minutes)
	c.persist()
	c.notify(ctx, c.msg(msgStarting), nil)
	c.startProvisioning(ctx)
	return true
}

// autoStart claims the session at the maximum duration without operator
// input. Used when there is no interactive command source.
func (c *Controller) autoStart(ctx context.Context) {
	if !c.state.BeginSelection(c.settings.MaxDuration) {
		return
	}
	c.log.Info("headless session, starting automatically", "minutes", c.settings.MaxDuration)
	c.persist()
	c.startProvisioning(ctx)
}

func (c *Controller) startProvisioning(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runSession(ctx)
	}()
}

// runSession provisions remote access and, on success, stays on to monitor
// the session until it ends.
func (c *Controller) runSession(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, fmt.Errorf("unexpected error: %v", r))
		}
	}()

	endpoints, err := c.target.Start(ctx, c.settings.Password)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	if !c.state.Active() {
		c.log.Info("session stopped during provisioning")
		return
	}

	c.state.SetEndpoints(endpoints)
	c.state.MarkStarted()
	c.persist()
	c.log.Info("remote access ready", "remote_id", endpoints.RemoteID, "shell", endpoints.ShellSSH != "")

	report := coordinator.EndpointReport{
		OSType:           c.target.Kind().OSType(),
		RustDeskID:       endpoints.RemoteID,
		RustDeskPassword: endpoints.RemotePassword,
		TmateSSH:         endpoints.ShellSSH,
		TmateWeb:         endpoints.ShellWeb,
	}
	if err := c.coord.ReportEndpoint(ctx, report); err != nil {
		c.log.Warn("failed to report endpoint", "error", err)
		c.notify(ctx, c.msg(msgError, fmt.Sprintf("Failed to send endpoint to worker: %v", err)), nil)
	}

	d := hostinfo.Details{Country: hostinfo.Unknown, IP: hostinfo.Unknown, CPUs: hostinfo.Unknown, RAMGB: hostinfo.Unknown, OS: hostinfo.Unknown}
	if c.host != nil {
		d = c.host.Collect(ctx)
	}
	c.notify(ctx, c.msg(msgActive, d.Country, d.IP, d.CPUs, d.RAMGB, d.OS), controlKeyboard())

	c.monitor(ctx)
}

func (c *Controller) fail(ctx context.Context, err error) {
	c.log.Error("provisioning failed", "error", err)
	c.state.SetError(err.Error())
	c.persist()
	c.notify(ctx, c.msg(msgError, err.Error()), nil)
}

// monitor checks for expiry every MonitorInterval until the session stops.
func (c *Controller) monitor(ctx context.Context) {
	for c.state.Active() {
		if remaining, ok := c.state.RemainingMinutes(); ok && remaining <= 0 {
			c.log.Info("session expired")
			c.notify(ctx, c.msg(msgTimeout), nil)
			c.Shutdown(ctx)
			return
		}
		if err := c.sleep(ctx, c.settings.MonitorInterval); err != nil {
			return
		}
	}
}

// Extend adds extendMinutes if the result stays within the ceiling.
func (c *Controller) Extend(ctx context.Context) bool {
	if _, ok := c.state.StartTime(); !ok {
		c.notify(ctx, c.msg(msgNotStarted), nil)
		return false
	}

	total, ok := c.state.ExtendWithin(extendMinutes, c.settings.MaxDuration)
	if !ok {
		c.notify(ctx, c.maxLimitText(), nil)
		return false
	}

	c.log.Info("session extended", "minutes", total)
	c.persist()
	c.notify(ctx, c.msg(msgExtended, extendMinutes), controlKeyboard())
	return true
}

// Info reports host load and remaining time.
func (c *Controller) Info(ctx context.Context) {
	remaining, ok := c.state.RemainingMinutes()
	if !ok {
		c.notify(ctx, c.msg(msgNotStarted), controlKeyboard())
		return
	}

	var usage hostinfo.Usage
	if c.host != nil {
		u, err := c.host.Sample(ctx)
		if err != nil {
			c.log.Warn("failed to sample host usage", "error", err)
		}
		usage = u
	}
	c.notify(ctx, c.msg(msgStatusInfo, usage.CPUPercent, usage.RAMPercent, max(0, remaining)), controlKeyboard())
}

// Shutdown stops the session, tells the coordinator and powers the host
// off. Only the first call does anything.
func (c *Controller) Shutdown(ctx context.Context) {
	if !c.state.Stop() {
		return
	}
	close(c.stopped)
	defer close(c.done)
	c.log.Info("shutting down session")
	c.persist()

	// The session is over even if the caller's context is being cancelled.
	ctx = context.WithoutCancel(ctx)

	if err := c.coord.EndSession(ctx); err != nil {
		c.log.Warn("failed to notify session end", "error", err)
	}
	if c.settings.GraceDelay > 0 {
		time.Sleep(c.settings.GraceDelay)
	}

	if err := c.target.PowerOff(ctx); err != nil {
		c.log.Error("power-off failed", "error", err)
	}
}

// notify sends an operator message. Failures are logged and dropped.
func (c *Controller) notify(ctx context.Context, msg string, markup *coordinator.Keyboard) {
	if err := c.coord.SendMessage(ctx, msg, markup); err != nil {
		c.log.Debug("failed to send message", "error", err)
	}
}

func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.state.Snapshot()); err != nil {
		c.log.Warn("failed to save session snapshot", "error", err)
	}
}

func (c *Controller) maxLimitText() string {
	return c.msg(msgMaxLimit, humanMinutes(c.settings.MaxDuration))
}

func (c *Controller) msg(key string, args ...any) string {
	return text(c.settings.Language, key, args...)
}

// sleep waits for d. It returns early with ctx.Err() on cancellation, or
// with nil once the session is stopped.
func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return nil
	case <-timer.C:
		return nil
	}
}
