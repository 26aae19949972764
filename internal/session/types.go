package session

import "time"

// Phase is the lifecycle position of the session, derived from its flags.
type Phase string

const (
	PhaseIdle         Phase = "idle"         // no duration chosen
	PhaseProvisioning Phase = "provisioning" // duration chosen, remote access not confirmed
	PhaseActive       Phase = "active"       // remote access confirmed, monitor running
	PhaseStopped      Phase = "stopped"      // terminal
)

// Endpoints holds the connection details produced by provisioning
type Endpoints struct {
	RemoteID       string `json:"remote_id"`
	RemotePassword string `json:"remote_password,omitempty"`
	ShellSSH       string `json:"shell_ssh,omitempty"` // empty when terminal sharing is unavailable
	ShellWeb       string `json:"shell_web,omitempty"`
}

// Redacted returns a copy safe to write to disk or logs.
func (e Endpoints) Redacted() Endpoints {
	if e.RemotePassword != "" {
		e.RemotePassword = "***"
	}
	return e
}

// Snapshot is a point-in-time copy of the session record
type Snapshot struct {
	AgentID   string     `json:"agent_id"`
	Phase     Phase      `json:"phase"`
	Duration  int        `json:"duration_minutes"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Active    bool       `json:"active"`
	Started   bool       `json:"started"`
	Endpoints *Endpoints `json:"endpoints,omitempty"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
