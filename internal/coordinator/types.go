package coordinator

import "fmt"

// Command types delivered by the coordinator
const (
	CommandText     = "text"
	CommandCallback = "callback"
)

// Update is one queued inbound command
type Update struct {
	CommandType string `json:"command_type"`
	Payload     string `json:"payload"`
}

// EndpointReport is the connection record sent once provisioning succeeds
type EndpointReport struct {
	OSType           string `json:"os_type"` // "windows" or "ubuntu"
	RustDeskID       string `json:"rustdesk_id"`
	RustDeskPassword string `json:"rustdesk_password"`
	TmateSSH         string `json:"tmate_ssh"`
	TmateWeb         string `json:"tmate_web"`
}

// Button is one inline keyboard button
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// Keyboard is the opaque reply_markup rendered by the operator UI
type Keyboard struct {
	InlineKeyboard [][]Button `json:"inline_keyboard"`
}

type registerRequest struct {
	ChatID string `json:"chat_id"`
	RunID  string `json:"run_id"`
	Secret string `json:"secret"`
}

type heartbeatRequest struct {
	RunID  string `json:"run_id"`
	Secret string `json:"secret"`
}

type endpointRequest struct {
	ChatID string `json:"chat_id"`
	RunID  string `json:"run_id"`
	Secret string `json:"secret"`
	EndpointReport
}

type messageRequest struct {
	ChatID      string    `json:"chat_id"`
	RunID       string    `json:"run_id,omitempty"`
	Secret      string    `json:"secret"`
	Text        string    `json:"text"`
	ReplyMarkup *Keyboard `json:"reply_markup,omitempty"`
}

type endSessionRequest struct {
	ChatID string `json:"chat_id"`
	Secret string `json:"secret"`
}

// TransportError is returned for any failed coordinator call: network error,
// timeout or non-2xx status.
type TransportError struct {
	Op     string
	Status int // zero when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("coordinator %s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("coordinator %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
