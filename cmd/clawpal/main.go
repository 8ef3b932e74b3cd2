// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// clawpal diagnoses an OpenClaw installation by letting a remote agent
// run commands on this host, each one approved here first.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/clawpal/clawpal/cmd/clawpal/cli"
	"github.com/clawpal/clawpal/lib/config"
)

func main() {
	if err := root(os.Stdin, os.Stdout).Execute(os.Args[1:]); err != nil {
		// Commands that print their own verdict (check) return an
		// ExitError; there is nothing more to say.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root(in io.Reader, out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "clawpal",
		Summary: "Diagnose an OpenClaw gateway with an agent",
		Description: `clawpal connects to an OpenClaw gateway twice: as an operator, to chat
with a diagnostic agent, and as a node, so the agent can run commands on
this host. Every command the agent asks for is shown here and runs only
once you approve it, or when it matches a pattern you approved earlier.

Configuration is read from --config or CLAWPAL_CONFIG.`,
		Subcommands: []*cli.Command{
			doctorCommand(in, out),
			historyCommand(out),
			checkCommand(out),
			versionCommand(out),
		},
		Examples: []cli.Example{
			{Description: "Start a diagnosis of this host", Command: "clawpal doctor"},
			{Description: "List archived sessions", Command: "clawpal history list"},
		},
	}
}

// loadConfig reads path, or CLAWPAL_CONFIG when path is empty, and
// validates the result.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
