package protocol

import "encoding/json"

// Envelope status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope codes used by the dispatch engine.
const (
	CodeOK          = 200
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeInternal    = 500
	InternalMessage = "Internal server error"
)

// Request is the envelope a client sends on the request/reply channel.
type Request struct {
	Action string
	Params map[string]any
	// MsgID is kept as raw JSON so it is echoed back exactly as received.
	// nil means the client sent no msg_id (or null).
	MsgID json.RawMessage
}

// Response is the envelope sent back for every request.
type Response struct {
	MsgID     json.RawMessage `json:"msg_id"`
	Timestamp int64           `json:"timestamp"`
	Status    string          `json:"status"` // success | error
	Code      int             `json:"code"`
	Data      map[string]any  `json:"data"`
	Message   string          `json:"message"`
	Error     *string         `json:"error"` // nil iff Status == success
}

// Notification is the envelope pushed on the broadcast channel.
type Notification struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// OK reports whether the response carries a success status.
func (r *Response) OK() bool {
	return r.Status == StatusSuccess
}
