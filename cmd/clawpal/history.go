// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/clawpal/clawpal/archive"
	"github.com/clawpal/clawpal/cmd/clawpal/cli"
)

func historyCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "history",
		Summary: "Browse archived diagnosis sessions",
		Description: `Sessions are archived when they are stopped, reset, or replaced by a
new diagnosis. The archive keeps the newest archive.max_sessions.`,
		Subcommands: []*cli.Command{
			historyListCommand(out),
			historyShowCommand(out),
			historyDeleteCommand(out),
		},
	}
}

// openArchive loads the config and opens its archive.
func openArchive(configPath string) (*archive.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Archive.Disabled {
		return nil, errors.New("the session archive is disabled (archive.disabled)")
	}
	return openStore(cfg.Archive.Path, cfg.Archive.MaxSessions, cli.NewCommandLogger(false))
}

func openStore(path string, maxSessions int, logger *slog.Logger) (*archive.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return archive.Open(archive.Config{Path: path, MaxSessions: maxSessions, Logger: logger})
}

func configFlag(name string, configPath *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(configPath, "config", "", "clawpal config file (default $CLAWPAL_CONFIG)")
	return flagSet
}

func historyListCommand(out io.Writer) *cli.Command {
	var (
		configPath string
		limit      int
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List archived sessions, newest first",
		Usage:   "clawpal history list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := configFlag("list", &configPath)
			flagSet.IntVarP(&limit, "limit", "n", 20, "show at most this many sessions (0 for all)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			store, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.List(context.Background(), limit)
			if err != nil {
				return err
			}
			return writeSummaries(out, summaries)
		},
	}
}

func writeSummaries(out io.Writer, summaries []archive.Summary) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(out, "no archived sessions")
		return err
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ENDED\tTARGET\tAGENT\tMESSAGES\tTOOLS\tSESSION")
	for _, summary := range summaries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%s\n",
			summary.EndedAt.Local().Format(time.DateTime),
			summary.Session.Target,
			summary.Session.AgentID,
			summary.MessageCount,
			summary.ToolCalls,
			summary.Session.Key,
		)
	}
	return writer.Flush()
}

func historyShowCommand(out io.Writer) *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "show",
		Summary: "Print an archived transcript",
		Usage:   "clawpal history show [flags] <session-key>",
		Flags: func() *pflag.FlagSet {
			return configFlag("show", &configPath)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: clawpal history show <session-key>")
			}
			store, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Load(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "session %s\ntarget %s, agent %s, %s to %s\n\n",
				record.Session.Key, record.Session.Target, record.Session.AgentID,
				record.StartedAt.Local().Format(time.DateTime),
				record.EndedAt.Local().Format(time.DateTime))
			renderer := newRenderer(out, 0)
			for _, message := range record.Messages {
				fmt.Fprintln(out, renderer.message(message))
			}
			return nil
		},
	}
}

func historyDeleteCommand(out io.Writer) *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "delete",
		Summary: "Remove an archived session",
		Usage:   "clawpal history delete [flags] <session-key>...",
		Flags: func() *pflag.FlagSet {
			return configFlag("delete", &configPath)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return errors.New("usage: clawpal history delete <session-key>...")
			}
			store, err := openArchive(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, key := range args {
				if err := store.Delete(context.Background(), key); err != nil {
					return fmt.Errorf("deleting %s: %w", key, err)
				}
				fmt.Fprintf(out, "deleted %s\n", key)
			}
			return nil
		},
	}
}
