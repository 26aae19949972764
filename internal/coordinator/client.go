// Package coordinator is the HTTP client for the remote service that relays
// operator commands to the agent and agent notices back to the operator.
//
// Every call has its own short timeout and none retries. Whether a failure
// matters is the caller's decision.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Per-call timeouts
const (
	registerTimeout  = 10 * time.Second
	heartbeatTimeout = 5 * time.Second
	pollTimeout      = 10 * time.Second
	endpointTimeout  = 10 * time.Second
	messageTimeout   = 10 * time.Second
	endTimeout       = 5 * time.Second

	// DefaultHeartbeatInterval is the minimum spacing of unforced heartbeats.
	DefaultHeartbeatInterval = 60 * time.Second

	secretHeader = "X-Bot-Secret"
	maxBodyBytes = 1 << 20
)

// Options configures a Client
type Options struct {
	BaseURL           string
	Secret            string
	ChatID            string
	RunID             string
	UserAgent         string
	HeartbeatInterval time.Duration
	HTTPClient        *http.Client
	Now               func() time.Time
}

// Client talks to the coordinator
type Client struct {
	baseURL   string
	secret    string
	chatID    string
	runID     string
	userAgent string
	http      *http.Client
	now       func() time.Time

	hbMu       sync.Mutex
	hbInterval time.Duration
	hbLimiter  *rate.Limiter
}

// NewClient creates a coordinator client. An empty BaseURL turns every call
// into a no-op.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		secret:     opts.Secret,
		chatID:     opts.ChatID,
		runID:      opts.RunID,
		userAgent:  opts.UserAgent,
		http:       opts.HTTPClient,
		now:        opts.Now,
		hbInterval: opts.HeartbeatInterval,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.hbInterval <= 0 {
		c.hbInterval = DefaultHeartbeatInterval
	}
	if c.userAgent == "" {
		c.userAgent = "runner-agent"
	}
	c.hbLimiter = rate.NewLimiter(rate.Every(c.hbInterval), 1)
	return c
}

// tracksRun reports whether run-scoped calls (register, heartbeat, endpoint)
// should be made at all.
func (c *Client) tracksRun() bool {
	return c.baseURL != "" && c.runID != ""
}

// Register announces this run to the coordinator.
func (c *Client) Register(ctx context.Context) error {
	if !c.tracksRun() {
		return nil
	}
	body := registerRequest{ChatID: c.chatID, RunID: c.runID, Secret: c.secret}
	return c.post(ctx, "register", "/register-session", registerTimeout, body)
}

// Heartbeat tells the coordinator the run is alive. Unless force is set it is
// a no-op when the last successful heartbeat was less than the configured
// interval ago.
func (c *Client) Heartbeat(ctx context.Context, force bool) error {
	if !c.tracksRun() {
		return nil
	}

	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	now := c.now()
	var reservation *rate.Reservation
	if !force {
		reservation = c.hbLimiter.ReserveN(now, 1)
		if !reservation.OK() || reservation.DelayFrom(now) > 0 {
			reservation.CancelAt(now)
			return nil
		}
	}

	body := heartbeatRequest{RunID: c.runID, Secret: c.secret}
	if err := c.post(ctx, "heartbeat", "/heartbeat", heartbeatTimeout, body); err != nil {
		if reservation != nil {
			reservation.CancelAt(now)
		}
		return err
	}

	if force {
		// Restart the window from this heartbeat.
		c.hbLimiter = rate.NewLimiter(rate.Every(c.hbInterval), 1)
		c.hbLimiter.AllowN(now, 1)
	}
	return nil
}

// Poll fetches the next queued command. The boolean is false when nothing is
// queued or the response could not be decoded; decoding problems are never
// returned as errors.
func (c *Client) Poll(ctx context.Context) (Update, bool, error) {
	if c.baseURL == "" {
		return Update{}, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	u := c.baseURL + "/get-updates?chat_id=" + url.QueryEscape(c.chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Update{}, false, &TransportError{Op: "poll", Err: err}
	}
	req.Header.Set(secretHeader, c.secret)
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Update{}, false, &TransportError{Op: "poll", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Update{}, false, &TransportError{Op: "poll", Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Update{}, false, &TransportError{Op: "poll", Err: err}
	}
	update, ok := decodeUpdate(data)
	return update, ok, nil
}

func decodeUpdate(data []byte) (Update, bool) {
	var raw struct {
		CommandType string  `json:"command_type"`
		Payload     *string `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.Payload == nil {
		return Update{}, false
	}
	return Update{CommandType: raw.CommandType, Payload: *raw.Payload}, true
}

// ReportEndpoint sends the connection details for this run.
func (c *Client) ReportEndpoint(ctx context.Context, report EndpointReport) error {
	if c.baseURL == "" {
		return nil
	}
	body := endpointRequest{ChatID: c.chatID, RunID: c.runID, Secret: c.secret, EndpointReport: report}
	return c.post(ctx, "session-endpoint", "/session-endpoint", endpointTimeout, body)
}

// SendMessage relays text (and an optional keyboard) to the operator.
func (c *Client) SendMessage(ctx context.Context, text string, markup *Keyboard) error {
	if c.baseURL == "" {
		return nil
	}
	body := messageRequest{ChatID: c.chatID, RunID: c.runID, Secret: c.secret, Text: text, ReplyMarkup: markup}
	return c.post(ctx, "runner-message", "/runner-message", messageTimeout, body)
}

// EndSession tells the coordinator the session is over.
func (c *Client) EndSession(ctx context.Context) error {
	if c.baseURL == "" {
		return nil
	}
	body := endSessionRequest{ChatID: c.chatID, Secret: c.secret}
	return c.post(ctx, "end-session", "/end-session", endTimeout, body)
}

func (c *Client) post(ctx context.Context, op, path string, timeout time.Duration, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
}
