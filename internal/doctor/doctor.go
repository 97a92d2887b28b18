// Package doctor reports risky or inconsistent relayd settings that still
// pass config validation.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/mattjoyce/relayd/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// knownScopes are the admin API scopes the server checks for.
var knownScopes = map[string]bool{
	"*":          true,
	"actions:ro": true, "actions:rw": true,
	"events:ro": true, "events:rw": true,
	"notify:ro": true, "notify:rw": true,
}

// Doctor inspects a loaded config.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateTokens(r)
	d.warnExposure(r)
	d.warnCredentials(r)
	d.warnSessions(r)
	d.warnNotify(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateTokens(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}

	seen := map[string]string{}
	if key := d.cfg.API.Auth.APIKey; key != "" {
		seen[key] = "api.auth.api_key"
		if len(key) < 16 {
			d.addWarning(r, "api", "api.auth.api_key", "api_key is shorter than 16 characters")
		}
	}

	for i, tok := range d.cfg.API.Auth.Tokens {
		field := fmt.Sprintf("api.auth.tokens[%d]", i)
		if prev, dup := seen[tok.Token]; dup {
			d.addError(r, "api", field+".token", fmt.Sprintf("token duplicates %s", prev))
		} else {
			seen[tok.Token] = field
		}
		for j, scope := range tok.Scopes {
			if !knownScopes[strings.TrimSpace(scope)] {
				d.addError(r, "token_scopes", fmt.Sprintf("%s.scopes[%d]", field, j),
					fmt.Sprintf("unknown scope %q (expected *, actions:ro, events:ro or notify:rw)", scope))
			}
		}
	}
}

func (d *Doctor) warnExposure(r *Result) {
	if !isLoopback(d.cfg.BindHost) && !d.cfg.Actions.RequireSession {
		d.addWarning(r, "exposure", "actions.require_session",
			fmt.Sprintf("task actions accept unauthenticated requests on %s", d.cfg.BindHost))
	}
	if d.cfg.API.Enabled {
		host, _, err := net.SplitHostPort(d.cfg.API.Listen)
		if err == nil && !isLoopback(host) {
			d.addWarning(r, "exposure", "api.listen",
				fmt.Sprintf("admin API listens on non-loopback address %s", d.cfg.API.Listen))
		}
	}
}

func (d *Doctor) warnCredentials(r *Result) {
	if d.cfg.Credentials.File == "" {
		d.addWarning(r, "credentials", "credentials.file",
			"no credentials file; built-in users with well-known passwords are active")
		return
	}
	if !d.cfg.Credentials.VerifyChecksum {
		d.addWarning(r, "credentials", "credentials.verify_checksum",
			"credentials file is not checksum-verified (run 'relayd config lock' and enable verify_checksum)")
	}
}

func (d *Doctor) warnSessions(r *Result) {
	if d.cfg.SessionTTLSeconds < 60 {
		d.addWarning(r, "sessions", "session_ttl_seconds",
			fmt.Sprintf("sessions expire after only %ds", d.cfg.SessionTTLSeconds))
	}
	if d.cfg.Session.Backend == "memory" && d.cfg.Session.SweepInterval == 0 {
		d.addWarning(r, "sessions", "session.sweep_interval",
			"expired sessions stay in memory until verified; set sweep_interval to reclaim them")
	}
	if d.cfg.Session.SweepJitter > 0 && d.cfg.Session.SweepInterval == 0 {
		d.addWarning(r, "sessions", "session.sweep_jitter", "sweep_jitter has no effect while sweep_interval is 0")
	}
}

func (d *Doctor) warnNotify(r *Result) {
	if d.cfg.Notify.HeartbeatInterval == 0 {
		d.addWarning(r, "notify", "notify.heartbeat_interval", "heartbeats are disabled")
	}
	if !d.cfg.Notify.ForwardEvents && d.cfg.Notify.EventsTopic != config.Defaults().Notify.EventsTopic {
		d.addWarning(r, "notify", "notify.events_topic", "events_topic is set but forward_events is off")
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("No issues found.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "%d warning(s)\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, level string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", level, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", level, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
