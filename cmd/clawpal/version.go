// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"

	"github.com/clawpal/clawpal/cmd/clawpal/cli"
	"github.com/clawpal/clawpal/lib/version"
)

func versionCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print the clawpal version",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			fmt.Fprintf(out, "clawpal %s\n", version.Info())
			return nil
		},
	}
}
