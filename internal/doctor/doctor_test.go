package doctor

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/relayd/internal/config"
)

// quietConfig is a config that produces no warnings.
func quietConfig() *config.Config {
	cfg := config.Defaults()
	cfg.BindHost = "127.0.0.1"
	cfg.Credentials = config.CredentialsConfig{File: "/etc/relayd/users.yaml", VerifyChecksum: true}
	cfg.Session.SweepInterval = time.Minute
	return cfg
}

func hasIssue(issues []Issue, field string) bool {
	for _, i := range issues {
		if i.Field == field {
			return true
		}
	}
	return false
}

func TestValidate_QuietConfig(t *testing.T) {
	t.Parallel()
	r := New(quietConfig()).Validate()
	if !r.Valid || len(r.Warnings) != 0 {
		t.Fatalf("expected no issues, got errors=%v warnings=%v", r.Errors, r.Warnings)
	}
	if got := FormatHuman(r); got != "No issues found.\n" {
		t.Errorf("FormatHuman = %q", got)
	}
}

func TestValidate_DefaultsWarn(t *testing.T) {
	t.Parallel()
	r := New(config.Defaults()).Validate()
	if !r.Valid {
		t.Fatalf("defaults should be valid, got %v", r.Errors)
	}
	for _, field := range []string{"actions.require_session", "credentials.file", "session.sweep_interval"} {
		if !hasIssue(r.Warnings, field) {
			t.Errorf("expected warning for %s, got %v", field, r.Warnings)
		}
	}
}

func TestValidate_Tokens(t *testing.T) {
	t.Parallel()
	cfg := quietConfig()
	cfg.API.Enabled = true
	cfg.API.Auth.APIKey = "short"
	cfg.API.Auth.Tokens = []config.APIToken{
		{Token: "reader-token", Scopes: []string{"events:ro", "jobs:ro"}},
		{Token: "short", Scopes: []string{"*"}},
	}

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid result")
	}
	if !hasIssue(r.Errors, "api.auth.tokens[0].scopes[1]") {
		t.Errorf("expected unknown scope error, got %v", r.Errors)
	}
	if !hasIssue(r.Errors, "api.auth.tokens[1].token") {
		t.Errorf("expected duplicate token error, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "api.auth.api_key") {
		t.Errorf("expected short key warning, got %v", r.Warnings)
	}
}

func TestValidate_Exposure(t *testing.T) {
	t.Parallel()
	cfg := quietConfig()
	cfg.BindHost = "0.0.0.0"
	cfg.API.Enabled = true
	cfg.API.Listen = "0.0.0.0:8080"
	cfg.API.Auth.APIKey = "0123456789abcdef"

	r := New(cfg).Validate()
	if !hasIssue(r.Warnings, "actions.require_session") || !hasIssue(r.Warnings, "api.listen") {
		t.Errorf("expected exposure warnings, got %v", r.Warnings)
	}

	cfg.Actions.RequireSession = true
	cfg.API.Listen = "localhost:8080"
	r = New(cfg).Validate()
	if hasIssue(r.Warnings, "actions.require_session") || hasIssue(r.Warnings, "api.listen") {
		t.Errorf("unexpected exposure warnings: %v", r.Warnings)
	}
}

func TestValidate_SessionsAndNotify(t *testing.T) {
	t.Parallel()
	cfg := quietConfig()
	cfg.SessionTTLSeconds = 30
	cfg.Session.SweepInterval = 0
	cfg.Session.SweepJitter = time.Second
	cfg.Notify.HeartbeatInterval = 0
	cfg.Notify.ForwardEvents = false
	cfg.Notify.EventsTopic = "audit"
	cfg.Credentials.VerifyChecksum = false

	r := New(cfg).Validate()
	for _, field := range []string{
		"session_ttl_seconds",
		"session.sweep_interval",
		"session.sweep_jitter",
		"notify.heartbeat_interval",
		"notify.events_topic",
		"credentials.verify_checksum",
	} {
		if !hasIssue(r.Warnings, field) {
			t.Errorf("expected warning for %s", field)
		}
	}
}

func TestFormatHumanAndJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "api", Field: "api.auth", Message: "bad"}},
		Warnings: []Issue{{Category: "notify", Message: "quiet"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "Configuration invalid (1 error(s), 1 warning(s))") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "ERROR [api] api.auth: bad") || !strings.Contains(out, "WARN  [notify] quiet") {
		t.Errorf("unexpected lines: %q", out)
	}

	js, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	var back Result
	if err := json.Unmarshal([]byte(js), &back); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back.Valid || len(back.Errors) != 1 {
		t.Errorf("unexpected decoded result: %+v", back)
	}
}
