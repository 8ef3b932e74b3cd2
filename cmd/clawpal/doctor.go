// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/clawpal/clawpal/cmd/clawpal/cli"
	"github.com/clawpal/clawpal/doctor"
	"github.com/clawpal/clawpal/gateway"
	"github.com/clawpal/clawpal/lib/config"
	"github.com/clawpal/clawpal/lib/hostinfo"
)

type doctorOptions struct {
	configPath   string
	target       string
	agentID      string
	fullAuto     bool
	noArchive    bool
	autoPairHost string
	verbose      bool
}

func doctorCommand(in io.Reader, out io.Writer) *cli.Command {
	var options doctorOptions
	return &cli.Command{
		Name:    "doctor",
		Summary: "Start an interactive diagnosis",
		Description: `Doctor connects to the gateway as operator and node, sends the agent a
description of this host, and prints the conversation as it happens.
Commands the agent wants to run wait for /approve or /reject unless
they match a pattern approved earlier in this process, or --full-auto
is on. Type /help in the session for the command list.`,
		Usage: "clawpal doctor [flags]",
		Examples: []cli.Example{
			{Description: "Diagnose this host with the default agent", Command: "clawpal doctor"},
			{Description: "Use another agent and approve everything", Command: "clawpal doctor --agent triage --full-auto"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			flagSet.StringVar(&options.configPath, "config", "", "clawpal config file (default $CLAWPAL_CONFIG)")
			flagSet.StringVar(&options.target, "target", "", "diagnosis target, \"local\" or a host id (default diagnosis.target)")
			flagSet.StringVar(&options.agentID, "agent", "", "agent id (default diagnosis.agent_id)")
			flagSet.BoolVar(&options.fullAuto, "full-auto", false, "approve every command without asking")
			flagSet.BoolVar(&options.noArchive, "no-archive", false, "do not archive finished sessions")
			flagSet.StringVar(&options.autoPairHost, "auto-pair-host", "", "host id whose pairing requests are approved automatically (default this node)")
			flagSet.BoolVarP(&options.verbose, "verbose", "v", false, "log at debug level")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDoctor(ctx, options, in, out)
		},
	}
}

func runDoctor(ctx context.Context, options doctorOptions, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(options.configPath)
	if err != nil {
		return err
	}
	applyDoctorFlags(cfg, options)
	logger := cli.NewCommandLogger(options.verbose)

	endpoint, token, err := cfg.ResolveGateway()
	if err != nil {
		return fmt.Errorf("locating the gateway: %w", err)
	}

	if err := os.MkdirAll(cfg.Paths.Data, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	identity, err := gateway.LoadOrCreateIdentity(cfg.Gateway.DeviceKey)
	if err != nil {
		return err
	}
	logger.Debug("device identity loaded", "device_id", identity.DeviceID, "path", cfg.Gateway.DeviceKey)

	client, err := newGatewayClient(cfg, identity, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var archiver doctor.Archiver
	if !cfg.Archive.Disabled {
		store, err := openStore(cfg.Archive.Path, cfg.Archive.MaxSessions, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		archiver = store
	}

	controller, err := doctor.NewController(doctor.ControllerConfig{
		Gateway:  client,
		Archiver: archiver,
		FullAuto: cfg.Diagnosis.FullAuto,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer controller.Close()

	manager := doctor.NewConnectionManager(client, controller, logger)
	go manager.Run(ctx, client.Events())

	autoPairHost := cfg.Gateway.AutoPairHost
	if autoPairHost == "" {
		autoPairHost = client.NodeID()
	}
	err = manager.Connect(ctx, endpoint, doctor.Credentials{Token: token}, autoPairHost)
	switch {
	case errors.Is(err, doctor.ErrNodeRegistration):
		logger.Warn("node link unavailable, the agent cannot run commands", "error", err)
	case err != nil:
		return err
	}

	width := 0
	if file, ok := out.(*os.File); ok {
		width, _, _ = term.GetSize(int(file.Fd()))
	}
	renderer := newRenderer(out, width)
	current := &session{
		controller: controller,
		manager:    manager,
		request: doctor.DiagnosisRequest{
			Target:  cfg.Diagnosis.Target,
			AgentID: cfg.Diagnosis.AgentID,
		},
		diagnosticContext: diagnosticContext(cfg),
		out:               out,
		view:              newTranscriptView(renderer),
		logger:            logger,
	}

	if err := current.start(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, renderer.dim.Render("type /help for commands"))

	loopErr := current.loop(ctx, in)

	// Stop archives the session; Disconnect needs a context that is
	// not already cancelled by the signal that ended the loop.
	controller.Stop()
	if err := manager.Disconnect(context.Background()); err != nil {
		logger.Warn("disconnect failed", "error", err)
	}
	return loopErr
}

// newGatewayClient builds the gateway client with the configured
// timeouts.
func newGatewayClient(cfg *config.Config, identity *gateway.Identity, logger *slog.Logger) (*gateway.Client, error) {
	requestTimeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}
	userPendingAfter, err := cfg.UserPendingAfter()
	if err != nil {
		return nil, err
	}
	return gateway.NewClient(gateway.Config{
		Identity:         identity,
		RequestTimeout:   requestTimeout,
		UserPendingAfter: userPendingAfter,
		Logger:           logger,
	}), nil
}

// applyDoctorFlags lets command-line flags override the config file.
func applyDoctorFlags(cfg *config.Config, options doctorOptions) {
	if options.target != "" {
		cfg.Diagnosis.Target = options.target
	}
	if options.agentID != "" {
		cfg.Diagnosis.AgentID = options.agentID
	}
	if options.fullAuto {
		cfg.Diagnosis.FullAuto = true
	}
	if options.noArchive {
		cfg.Archive.Disabled = true
	}
	if options.autoPairHost != "" {
		cfg.Gateway.AutoPairHost = options.autoPairHost
	}
}

// diagnosticContext describes the host for the opening prompt. Remote
// targets are not inspected here; the agent learns about them by running
// commands.
func diagnosticContext(cfg *config.Config) func() string {
	if cfg.Diagnosis.Target != "local" {
		target := cfg.Diagnosis.Target
		return func() string {
			return fmt.Sprintf("target host: %s (remote, not inspected)\n", target)
		}
	}
	configPath := cfg.OpenClawConfigPath()
	return func() string {
		return hostinfo.Collect(hostinfo.Options{GatewayConfigPath: configPath}).Context()
	}
}

// loop reads actions from in and prints controller changes until the
// operator quits, in is exhausted, or ctx is done.
func (s *session) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.refresh()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.controller.Changes():
			s.refresh()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			parsed, err := parseAction(line)
			if err == nil {
				var quit bool
				quit, err = s.apply(ctx, parsed)
				if quit {
					return nil
				}
			}
			if err != nil {
				s.logger.Debug("action failed", "line", line, "error", err)
				fmt.Fprintln(s.out, s.view.renderer.failureLine(err.Error()))
			}
			s.refresh()
		}
	}
}
