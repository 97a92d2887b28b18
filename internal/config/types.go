package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config represents the complete relayd configuration.
type Config struct {
	BindHost          string `yaml:"bind_host"`
	ReqPort           int    `yaml:"req_port"`
	PubPort           int    `yaml:"pub_port"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`

	Service     ServiceConfig     `yaml:"service"`
	Session     SessionConfig     `yaml:"session"`
	Credentials CredentialsConfig `yaml:"credentials"`
	State       StateConfig       `yaml:"state"`
	Notify      NotifyConfig      `yaml:"notify"`
	Actions     ActionsConfig     `yaml:"actions"`
	API         APIConfig         `yaml:"api,omitempty"`

	// Path is the absolute path the config was loaded from, if any.
	Path string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Backend       string        `yaml:"backend"` // memory | redis
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepJitter   time.Duration `yaml:"sweep_jitter,omitempty"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig defines the redis session backend connection.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CredentialsConfig points at the user file. Empty File means built-in users.
type CredentialsConfig struct {
	File           string `yaml:"file"`
	VerifyChecksum bool   `yaml:"verify_checksum"`
}

// StateConfig defines task storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig controls what the broadcaster publishes on its own.
type NotifyConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTopic    string        `yaml:"heartbeat_topic"`
	ForwardEvents     bool          `yaml:"forward_events"`
	EventsTopic       string        `yaml:"events_topic"`
}

// ActionsConfig tunes action behaviour.
type ActionsConfig struct {
	RequireSession bool `yaml:"require_session"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the single full-access bearer token.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SessionTTL returns session_ttl_seconds as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// ReqEndpoint is the ZeroMQ endpoint of the request/reply channel.
func (c *Config) ReqEndpoint() string {
	return endpoint(c.BindHost, c.ReqPort)
}

// PubEndpoint is the ZeroMQ endpoint of the notification channel.
func (c *Config) PubEndpoint() string {
	return endpoint(c.BindHost, c.PubPort)
}

func endpoint(host string, port int) string {
	return fmt.Sprintf("tcp://%s", net.JoinHostPort(host, strconv.Itoa(port)))
}

// Defaults returns a Config with the stock relayd settings.
func Defaults() *Config {
	return &Config{
		BindHost:          "0.0.0.0",
		ReqPort:           5555,
		PubPort:           5556,
		SessionTTLSeconds: 86400,
		Service: ServiceConfig{
			Name:      "relayd",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Session: SessionConfig{
			Backend: "memory",
			Redis: RedisConfig{
				URL:       "redis://localhost:6379/0",
				KeyPrefix: "relayd",
			},
		},
		State: StateConfig{
			Path: "./data/relayd.db",
		},
		Notify: NotifyConfig{
			HeartbeatInterval: 10 * time.Second,
			ForwardEvents:     true,
			EventsTopic:       "session",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
