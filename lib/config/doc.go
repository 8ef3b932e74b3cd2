// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the ClawPal client configuration.
//
// The configuration is a single YAML file named by the CLAWPAL_CONFIG
// environment variable or the --config flag. There is no search path.
// ${HOME} and ${CLAWPAL_DATA} are expanded in path fields.
//
// When the file does not carry a gateway token, [ResolveGateway] falls
// back to the local gateway's own configuration (openclaw.json under
// the OpenClaw directory). That file is JSONC, so comments and trailing
// commas are stripped with tidwall/jsonc before decoding.
package config
