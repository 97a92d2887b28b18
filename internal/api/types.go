package api

import (
	"github.com/mattjoyce/relayd/internal/dispatch"
	"github.com/mattjoyce/relayd/internal/events"
)

// NotifyRequest is the JSON body for POST /v1/notify.
type NotifyRequest struct {
	Type  string         `json:"type"`
	Data  map[string]any `json:"data,omitempty"`
	Topic string         `json:"topic,omitempty"`
}

// NotifyResponse is returned once the notification was handed to the publisher.
type NotifyResponse struct {
	Status string `json:"status"`
	Type   string `json:"type"`
	Topic  string `json:"topic"`
}

// ActionsResponse is returned by GET /v1/actions.
type ActionsResponse struct {
	Actions []string `json:"actions"`
}

// EventsResponse is returned by GET /v1/events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
	LastID int64          `json:"last_id"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Actions        int    `json:"actions"`
	ActiveSessions int    `json:"active_sessions"`

	// Dispatch is omitted when the server has no request loop attached.
	Dispatch *dispatch.Stats `json:"dispatch,omitempty"`
}
