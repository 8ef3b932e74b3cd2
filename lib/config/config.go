// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the ClawPal client configuration.
type Config struct {
	// Paths configures where local state lives.
	Paths PathsConfig `yaml:"paths"`

	// Gateway configures the connection to the agent gateway.
	Gateway GatewayConfig `yaml:"gateway"`

	// Diagnosis configures the diagnosis session defaults.
	Diagnosis DiagnosisConfig `yaml:"diagnosis"`

	// Archive configures the finished-session archive.
	Archive ArchiveConfig `yaml:"archive"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Data is ClawPal's own state directory (device key, archive).
	// Default: ${HOME}/.clawpal
	Data string `yaml:"data"`

	// OpenClaw is the local gateway's configuration directory.
	// Default: ${HOME}/.openclaw
	OpenClaw string `yaml:"openclaw"`
}

// GatewayConfig configures the gateway links.
type GatewayConfig struct {
	// URL is the gateway WebSocket endpoint. When empty, it is derived
	// from the local gateway's port as ws://127.0.0.1:<port>.
	URL string `yaml:"url"`

	// Token is the gateway auth token. When empty, it is read from the
	// local gateway's openclaw.json.
	Token string `yaml:"token"`

	// DeviceKey is the PKCS#8 PEM file holding this device's Ed25519
	// key. Created on first use. Default: ${CLAWPAL_DATA}/device.pem
	DeviceKey string `yaml:"device_key"`

	// AutoPairHost is a trusted host id. When the node link is refused
	// for lack of pairing, the pending pairing request for this host is
	// approved and the node link retried once.
	AutoPairHost string `yaml:"auto_pair_host"`

	// RequestTimeout bounds how long a request waits for its response.
	// Default: 30s
	RequestTimeout string `yaml:"request_timeout"`

	// UserPendingAfter is how long an undecided invoke waits before the
	// node tells the gateway the user is still reviewing. It must stay
	// under the gateway's own invoke timeout. Default: 25s
	UserPendingAfter string `yaml:"user_pending_after"`
}

// DiagnosisConfig configures diagnosis sessions.
type DiagnosisConfig struct {
	// AgentID is the reasoning agent that handles the session.
	// Default: main
	AgentID string `yaml:"agent_id"`

	// Target is the machine being diagnosed. Default: local
	Target string `yaml:"target"`

	// FullAuto approves every invoke without asking.
	FullAuto bool `yaml:"full_auto"`
}

// ArchiveConfig configures the session archive.
type ArchiveConfig struct {
	// Path is the SQLite file. Default: ${CLAWPAL_DATA}/archive.db
	Path string `yaml:"path"`

	// Disabled turns archiving off.
	Disabled bool `yaml:"disabled"`

	// MaxSessions bounds the archive; the oldest sessions are pruned.
	MaxSessions int `yaml:"max_sessions"`
}

// Default returns the configuration used as a base before the file is
// applied.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Data:     "${HOME}/.clawpal",
			OpenClaw: "${HOME}/.openclaw",
		},
		Gateway: GatewayConfig{
			DeviceKey:        "${CLAWPAL_DATA}/device.pem",
			RequestTimeout:   "30s",
			UserPendingAfter: "25s",
		},
		Diagnosis: DiagnosisConfig{
			AgentID: "main",
			Target:  "local",
		},
		Archive: ArchiveConfig{
			Path:        "${CLAWPAL_DATA}/archive.db",
			MaxSessions: 200,
		},
	}
}

// Load loads the file named by CLAWPAL_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("CLAWPAL_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CLAWPAL_CONFIG environment variable not set; " +
			"set it to the path of your clawpal.yaml, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default.
func LoadFile(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	config.expandVariables()
	return config, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}

	c.Paths.Data = expandVars(c.Paths.Data, vars)
	vars["CLAWPAL_DATA"] = c.Paths.Data
	c.Paths.OpenClaw = expandVars(c.Paths.OpenClaw, vars)
	c.Gateway.DeviceKey = expandVars(c.Gateway.DeviceKey, vars)
	c.Archive.Path = expandVars(c.Archive.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors and reports all of
// them at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Data == "" {
		errs = append(errs, fmt.Errorf("paths.data is required"))
	} else if !filepath.IsAbs(c.Paths.Data) {
		errs = append(errs, fmt.Errorf("paths.data must be absolute, got %q", c.Paths.Data))
	}
	if c.Diagnosis.AgentID == "" {
		errs = append(errs, fmt.Errorf("diagnosis.agent_id is required"))
	}
	if c.Diagnosis.Target == "" {
		errs = append(errs, fmt.Errorf("diagnosis.target is required"))
	}
	if _, err := c.RequestTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.UserPendingAfter(); err != nil {
		errs = append(errs, err)
	}
	if c.Archive.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("archive.max_sessions must not be negative, got %d", c.Archive.MaxSessions))
	}

	return errors.Join(errs...)
}

// RequestTimeout parses gateway.request_timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return parsePositiveDuration("gateway.request_timeout", c.Gateway.RequestTimeout)
}

// UserPendingAfter parses gateway.user_pending_after.
func (c *Config) UserPendingAfter() (time.Duration, error) {
	return parsePositiveDuration("gateway.user_pending_after", c.Gateway.UserPendingAfter)
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}
