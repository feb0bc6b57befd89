// Package config provides YAML configuration parsing for the statecast binary.
//
// This package configures the store and its HTTP views from a file, as an
// alternative to constructing a [statecast.Store] programmatically.
//
// Example configuration:
//
//	title: Users & Messages
//	port: 8080
//	log_level: info
//	metrics: true
//	users_load_delay: 1s
//	operation_delay: 2s
//	operation_failure_rate: 0.25
//
//	seed:
//	  users:
//	    - name: Ana García
//	      email: ana@example.com
//	      active: true
//	  messages:
//	    - text: Welcome!
//	      kind: success
//	      age: 0s
package config

import (
	"fmt"
	"net/mail"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/statecast"
)

// maxDelay bounds the simulated latencies so a typo cannot park a task for days.
const maxDelay = 1 * time.Minute

// Config is the root configuration structure for statecast.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "statecast" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// LogFile, when set, receives a copy of every log record in text form.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	LogFile string `yaml:"log_file"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`

	// UsersLoadDelay is the simulated latency of a users reload. Defaults to 1s.
	UsersLoadDelay Duration `yaml:"users_load_delay"`

	// ActiveUsersDelay is the simulated latency of the active users query.
	// Defaults to 500ms.
	ActiveUsersDelay Duration `yaml:"active_users_delay"`

	// OperationDelay is the simulated latency of a long operation. Defaults to 2s.
	OperationDelay Duration `yaml:"operation_delay"`

	// OperationFailureRate is the probability, between 0 and 1, that a
	// simulated operation fails. Defaults to 0.
	OperationFailureRate float64 `yaml:"operation_failure_rate"`

	// Seed replaces the built-in seed data when present.
	Seed *SeedConfig `yaml:"seed"`
}

// SeedConfig holds the initial contents of the store.
type SeedConfig struct {
	Users    []UserConfig    `yaml:"users"`
	Messages []MessageConfig `yaml:"messages"`
}

// UserConfig defines one seed user.
type UserConfig struct {
	// ID is optional; users without one are numbered after the highest given id.
	ID int `yaml:"id"`

	// Name is the display name.
	Name string `yaml:"name"`

	// Email must be a valid address.
	Email string `yaml:"email"`

	// Active defaults to true when omitted.
	Active *bool `yaml:"active"`
}

// MessageConfig defines one seed message. Messages are listed most recent first.
type MessageConfig struct {
	// Text is the message body.
	Text string `yaml:"text"`

	// Kind is info, success, warning, or error. Defaults to info.
	Kind string `yaml:"kind"`

	// Age is how long before startup the message was created. Defaults to 0.
	Age Duration `yaml:"age"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in Title, LogFile, and seed user
// emails. Defaults are applied for Port (8080), LogLevel (info) and the
// simulated delays.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.UsersLoadDelay == 0 {
		c.UsersLoadDelay = Duration(1 * time.Second)
	}
	if c.ActiveUsersDelay == 0 {
		c.ActiveUsersDelay = Duration(500 * time.Millisecond)
	}
	if c.OperationDelay == 0 {
		c.OperationDelay = Duration(2 * time.Second)
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.Title, err = expandEnvVars(c.Title); err != nil {
		return fmt.Errorf("title: %w", err)
	}
	if c.LogFile, err = expandEnvVars(c.LogFile); err != nil {
		return fmt.Errorf("log_file: %w", err)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	delays := []struct {
		name string
		d    Duration
	}{
		{"users_load_delay", c.UsersLoadDelay},
		{"active_users_delay", c.ActiveUsersDelay},
		{"operation_delay", c.OperationDelay},
	}
	for _, d := range delays {
		if d.d.Duration() < 0 {
			return fmt.Errorf("%s cannot be negative, got %s", d.name, d.d.Duration())
		}
		if d.d.Duration() > maxDelay {
			return fmt.Errorf("%s must not exceed %s, got %s", d.name, maxDelay, d.d.Duration())
		}
	}

	if c.OperationFailureRate < 0 || c.OperationFailureRate > 1 {
		return fmt.Errorf("operation_failure_rate must be between 0 and 1, got %v", c.OperationFailureRate)
	}

	if c.Seed == nil {
		return nil
	}

	seenUsers := make(map[int]struct{}, len(c.Seed.Users))
	for i := range c.Seed.Users {
		u := &c.Seed.Users[i]

		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("seed.users[%d]: name is required", i)
		}
		if u.ID < 0 {
			return fmt.Errorf("seed.users[%d] (%s): id must be positive, got %d", i, u.Name, u.ID)
		}
		if u.ID != 0 {
			if _, exists := seenUsers[u.ID]; exists {
				return fmt.Errorf("seed.users[%d] (%s): duplicate id %d", i, u.Name, u.ID)
			}
			seenUsers[u.ID] = struct{}{}
		}

		expanded, err := expandEnvVars(u.Email)
		if err != nil {
			return fmt.Errorf("seed.users[%d] (%s): email: %w", i, u.Name, err)
		}
		u.Email = expanded
		if u.Email == "" {
			return fmt.Errorf("seed.users[%d] (%s): email is required", i, u.Name)
		}
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return fmt.Errorf("seed.users[%d] (%s): invalid email %q", i, u.Name, u.Email)
		}
	}

	for i := range c.Seed.Messages {
		m := &c.Seed.Messages[i]

		if strings.TrimSpace(m.Text) == "" {
			return fmt.Errorf("seed.messages[%d]: text is required", i)
		}
		kind, err := statecast.ParseMessageKind(m.Kind)
		if err != nil {
			return fmt.Errorf("seed.messages[%d]: %w", i, err)
		}
		m.Kind = kind.String()
		if m.Age.Duration() < 0 {
			return fmt.Errorf("seed.messages[%d]: age cannot be negative, got %s", i, m.Age.Duration())
		}
	}

	return nil
}
