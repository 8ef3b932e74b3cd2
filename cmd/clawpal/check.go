// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/clawpal/clawpal/cmd/clawpal/cli"
	"github.com/clawpal/clawpal/lib/config"
)

func checkCommand(out io.Writer) *cli.Command {
	var (
		configPath    string
		gatewayConfig string
	)
	return &cli.Command{
		Name:    "check",
		Summary: "Score the local OpenClaw gateway config",
		Description: `Check reads the OpenClaw gateway config (openclaw.json) and reports
problems that stop a gateway from starting: bad JSON, a missing agent
list, an invalid port, a read-only file. It exits 1 when the score is
below the healthy threshold.

The file is located through --config (paths.openclaw) unless --file
names it directly.`,
		Usage: "clawpal check [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "clawpal config file (default $CLAWPAL_CONFIG)")
			flagSet.StringVar(&gatewayConfig, "file", "", "gateway config file to check")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			path := gatewayConfig
			if path == "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				path = cfg.OpenClawConfigPath()
			}
			report := config.CheckOpenClawConfig(path)
			fmt.Fprint(out, report.String())
			if !report.Healthy() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
