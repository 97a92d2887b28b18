package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from a YAML file. ${VAR} placeholders are
// interpolated before parsing; keys absent from the file keep their defaults.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = absPath

	cfg.Credentials.File = ResolvePath(absPath, cfg.Credentials.File)
	cfg.State.Path = ResolvePath(absPath, cfg.State.Path)

	if cfg.Credentials.VerifyChecksum {
		if err := VerifyLocked(cfg.Credentials.File); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ResolvePath makes p relative to the directory of configPath. Empty and
// absolute paths are returned unchanged.
func ResolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = configPath
	}
	return filepath.Join(filepath.Dir(abs), p)
}

// Parse decodes YAML config bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Discover finds a config file. Priority order: $RELAYD_CONFIG,
// ~/.config/relayd/config.yaml, /etc/relayd/config.yaml, ./relayd.yaml.
// It returns "" with no error when none exists, meaning built-in defaults.
func Discover() (string, error) {
	if p := os.Getenv("RELAYD_CONFIG"); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("RELAYD_CONFIG points at %s: %w", p, err)
		}
		return p, nil
	}

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "relayd", "config.yaml"))
	}
	candidates = append(candidates, "/etc/relayd/config.yaml", "./relayd.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// applyConfigDefaults fills fields that were explicitly set empty.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.BindHost == "" {
		cfg.BindHost = defaults.BindHost
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = defaults.Session.Backend
	}
	if cfg.Session.Redis.KeyPrefix == "" {
		cfg.Session.Redis.KeyPrefix = defaults.Session.Redis.KeyPrefix
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	for name, port := range map[string]int{"req_port": cfg.ReqPort, "pub_port": cfg.PubPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s must be in 1..65535 (got %d)", name, port)
		}
	}
	if cfg.ReqPort == cfg.PubPort {
		return fmt.Errorf("req_port and pub_port must differ (both %d)", cfg.ReqPort)
	}
	if cfg.SessionTTLSeconds <= 0 {
		return fmt.Errorf("session_ttl_seconds must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	switch cfg.Session.Backend {
	case "memory":
	case "redis":
		if err := requireResolved("session.redis.url", cfg.Session.Redis.URL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("session.backend must be memory or redis (got %q)", cfg.Session.Backend)
	}
	if cfg.Session.SweepInterval < 0 || cfg.Session.SweepJitter < 0 {
		return fmt.Errorf("session.sweep_interval and sweep_jitter must not be negative")
	}

	if cfg.Credentials.VerifyChecksum && cfg.Credentials.File == "" {
		return fmt.Errorf("credentials.verify_checksum requires credentials.file")
	}

	if cfg.Notify.HeartbeatInterval < 0 {
		return fmt.Errorf("notify.heartbeat_interval must not be negative")
	}
	for name, topic := range map[string]string{
		"notify.heartbeat_topic": cfg.Notify.HeartbeatTopic,
		"notify.events_topic":    cfg.Notify.EventsTopic,
	} {
		if strings.Contains(topic, ":") {
			return fmt.Errorf("%s must not contain ':' (got %q)", name, topic)
		}
	}

	if cfg.API.Enabled {
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.enabled requires api.auth.api_key or api.auth.tokens")
		}
		if cfg.API.Auth.APIKey != "" {
			if err := requireResolved("api.auth.api_key", cfg.API.Auth.APIKey); err != nil {
				return err
			}
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if err := requireResolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}
	return nil
}

// requireResolved rejects empty values and leftover ${VAR} placeholders.
func requireResolved(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
