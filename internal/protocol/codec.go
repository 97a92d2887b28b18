package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformed marks a request payload that could not be decoded into an envelope.
var ErrMalformed = errors.New("malformed request")

// ErrInvalidTopic is returned for topics that would break the "<topic>:" wire prefix.
var ErrInvalidTopic = errors.New("invalid topic")

// DecodeRequest parses a raw request payload.
// Returns an error wrapping ErrMalformed if the payload is not a JSON object,
// if action is not a string, or if params is not an object.
func DecodeRequest(raw []byte) (*Request, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: request must be a JSON object", ErrMalformed)
	}

	req := &Request{Params: map[string]any{}}

	if v, ok := env["action"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &req.Action); err != nil {
			return nil, fmt.Errorf("%w: action must be a string", ErrMalformed)
		}
	}

	if v, ok := env["params"]; ok && !isNull(v) {
		// Numbers stay json.Number so they echo back exactly.
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var params map[string]any
		if err := dec.Decode(&params); err != nil {
			return nil, fmt.Errorf("%w: params must be an object", ErrMalformed)
		}
		req.Params = params
	}

	if v, ok := env["msg_id"]; ok && !isNull(v) {
		req.MsgID = v
	}

	return req, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Success builds a success envelope. A nil data map is sent as {}.
func Success(msgID json.RawMessage, data map[string]any, now time.Time) *Response {
	if data == nil {
		data = map[string]any{}
	}
	return &Response{
		MsgID:     msgID,
		Timestamp: now.Unix(),
		Status:    StatusSuccess,
		Code:      CodeOK,
		Data:      data,
	}
}

// Failure builds an error envelope; error and message carry the same text.
func Failure(msgID json.RawMessage, code int, message string, now time.Time) *Response {
	if code == 0 {
		code = CodeInternal
	}
	msg := message
	return &Response{
		MsgID:     msgID,
		Timestamp: now.Unix(),
		Status:    StatusError,
		Code:      code,
		Data:      map[string]any{},
		Message:   message,
		Error:     &msg,
	}
}

// EncodeResponse serializes a response envelope.
func EncodeResponse(resp *Response) ([]byte, error) {
	if resp.Status == StatusSuccess && resp.Error != nil {
		return nil, fmt.Errorf("success response must not carry an error")
	}
	if resp.Status != StatusSuccess && resp.Error == nil {
		return nil, fmt.Errorf("error response must carry an error")
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return b, nil
}

// Fallback returns the generic 500 envelope with a null msg_id. It cannot fail.
func Fallback(now time.Time) []byte {
	return fmt.Appendf(nil,
		`{"msg_id":null,"timestamp":%d,"status":"error","code":%d,"data":{},"message":%q,"error":%q}`,
		now.Unix(), CodeInternal, InternalMessage, InternalMessage)
}

// DecodeResponse parses a response envelope, as read by clients.
func DecodeResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Status != StatusSuccess && resp.Status != StatusError {
		return nil, fmt.Errorf("invalid status value: %q (must be 'success' or 'error')", resp.Status)
	}
	if isNull(resp.MsgID) {
		resp.MsgID = nil
	}
	return &resp, nil
}

// ValidateTopic rejects topics containing the prefix separator.
func ValidateTopic(topic string) error {
	if strings.Contains(topic, ":") {
		return fmt.Errorf("%w: %q contains ':'", ErrInvalidTopic, topic)
	}
	return nil
}

// EncodeNotification serializes n, prefixed with "<topic>:" when topic is non-empty.
func EncodeNotification(n *Notification, topic string) ([]byte, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	if topic == "" {
		return body, nil
	}
	out := make([]byte, 0, len(topic)+1+len(body))
	out = append(out, topic...)
	out = append(out, ':')
	return append(out, body...), nil
}

// DecodeNotification splits off an optional topic prefix and parses the envelope.
func DecodeNotification(raw []byte) (string, *Notification, error) {
	var topic string
	body := raw
	if len(raw) > 0 && raw[0] != '{' {
		i := bytes.IndexByte(raw, ':')
		if i < 0 {
			return "", nil, fmt.Errorf("notification has neither topic prefix nor JSON body")
		}
		topic, body = string(raw[:i]), raw[i+1:]
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return "", nil, fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.Type == "" {
		return "", nil, fmt.Errorf("notification missing required field: type")
	}
	return topic, &n, nil
}
