package contracts

import (
	"encoding/json"
	"time"
)

// InboundFrame is every client message after the handshake:
// {"type":"chat:send_message","data":{...}}
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is marshalled once per broadcast and shared by all recipients.
type OutboundFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ErrorFrame tells the originating connection why an event was rejected.
type ErrorFrame struct {
	Type  string    `json:"type"` // always "error"
	Error string    `json:"error"`
	Data  ErrorData `json:"data"`
}

type ErrorData struct {
	Event string `json:"event,omitempty"`
	Code  string `json:"code"`
}

// Broadcast is the envelope carried over the cross-process backplane.
// Kind and ID identify the typed group; Group is the wire name, kept for logs.
type Broadcast struct {
	Origin string          `json:"origin"`       // node id of the publishing process
	Kind   string          `json:"kind"`         // group kind, e.g. "notifications_user"
	ID     string          `json:"id,omitempty"` // group key, empty for dispatch and drivers
	Group  string          `json:"group"`        // wire group name, e.g. "vehicle:V1"
	Frame  json.RawMessage `json:"frame"`        // already-encoded OutboundFrame
	SentAt time.Time       `json:"sent_at"`
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Now is FormatTime(time.Now()).
func Now() string {
	return FormatTime(time.Now())
}
