// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// DefaultGatewayPort is the gateway's listening port when its config
// does not name one.
const DefaultGatewayPort = 18789

// LocalGateway is the part of the local gateway's openclaw.json that
// ClawPal reads.
type LocalGateway struct {
	Port  int
	Token string
}

// OpenClawConfigPath returns the path of the local gateway config.
func (c *Config) OpenClawConfigPath() string {
	return filepath.Join(c.Paths.OpenClaw, "openclaw.json")
}

// ReadLocalGateway reads the gateway port and auth token from an
// openclaw.json file. A missing file yields the default port and no
// token.
func ReadLocalGateway(path string) (LocalGateway, error) {
	gateway := LocalGateway{Port: DefaultGatewayPort}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return gateway, nil
	}
	if err != nil {
		return gateway, fmt.Errorf("reading %s: %w", path, err)
	}

	var document struct {
		Gateway struct {
			Port int `json:"port"`
			Auth struct {
				Token string `json:"token"`
			} `json:"auth"`
		} `json:"gateway"`
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &document); err != nil {
		return gateway, fmt.Errorf("parsing %s: %w", path, err)
	}

	if document.Gateway.Port > 0 && document.Gateway.Port <= 65535 {
		gateway.Port = document.Gateway.Port
	}
	gateway.Token = document.Gateway.Auth.Token
	return gateway, nil
}

// ResolveGateway returns the endpoint URL and token to connect with,
// filling whatever the YAML file left empty from the local gateway
// config.
func (c *Config) ResolveGateway() (url, token string, err error) {
	url, token = c.Gateway.URL, c.Gateway.Token
	if url != "" && token != "" {
		return url, token, nil
	}

	local, err := ReadLocalGateway(c.OpenClawConfigPath())
	if err != nil {
		return "", "", err
	}
	if url == "" {
		url = fmt.Sprintf("ws://127.0.0.1:%d", local.Port)
	}
	if token == "" {
		token = local.Token
	}
	return url, token, nil
}
