// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/clawpal/clawpal/doctor"
)

// session drives one interactive diagnosis: it applies typed actions
// to the controller and prints what changed.
type session struct {
	controller *doctor.Controller
	manager    *doctor.ConnectionManager
	request    doctor.DiagnosisRequest

	// diagnosticContext returns fresh context text for each diagnosis.
	diagnosticContext func() string
	out               io.Writer
	view              *transcriptView
	logger            *slog.Logger
}

// start opens a new diagnosis with a fresh context.
func (s *session) start(ctx context.Context) error {
	request := s.request
	if s.diagnosticContext != nil {
		request.Context = s.diagnosticContext()
	}
	_, err := s.controller.StartDiagnosis(ctx, request)
	return err
}

// refresh prints whatever the controller changed since the last call.
func (s *session) refresh() {
	for _, line := range s.view.update(s.controller.Snapshot()) {
		fmt.Fprintln(s.out, line)
	}
}

// apply runs one action and reports whether the session should end.
// Errors are for the operator to read; none of them end the session.
func (s *session) apply(ctx context.Context, parsed action) (bool, error) {
	switch parsed.kind {
	case actionNone:
	case actionMessage:
		return false, s.controller.SendMessage(ctx, parsed.text)
	case actionApprove:
		id, err := s.resolveInvoke(parsed.invokeID)
		if err != nil {
			return false, err
		}
		return false, s.controller.Approve(ctx, id)
	case actionReject:
		id, err := s.resolveInvoke(parsed.invokeID)
		if err != nil {
			return false, err
		}
		return false, s.controller.Reject(ctx, id, parsed.text)
	case actionAuto:
		s.controller.SetFullAuto(parsed.enabled)
	case actionStatus:
		s.printStatus()
	case actionStop:
		s.controller.Stop()
	case actionReset:
		s.controller.Reset()
		if err := s.manager.Reconnect(ctx); err != nil {
			return false, err
		}
		return false, s.start(ctx)
	case actionReconnect:
		return false, s.manager.Reconnect(ctx)
	case actionHelp:
		fmt.Fprintln(s.out, replHelp)
	case actionQuit:
		return true, nil
	}
	return false, nil
}

// resolveInvoke maps "" and "-" to the newest pending invoke.
func (s *session) resolveInvoke(id string) (string, error) {
	if id != "" && id != "-" {
		return id, nil
	}
	pending := pendingInvokes(s.controller.Snapshot())
	if len(pending) == 0 {
		return "", errors.New("no command is waiting for a decision")
	}
	return pending[len(pending)-1].Invoke.ID, nil
}

func (s *session) printStatus() {
	snapshot := s.controller.Snapshot()
	operator, bridge := s.manager.Status()
	fmt.Fprintf(s.out, "session %s (target %s)\n", snapshot.Session.Key, snapshot.Session.Target)
	fmt.Fprintf(s.out, "operator link: %s\nbridge link: %s\n", operator, bridge)
	for _, entry := range pendingInvokes(snapshot) {
		fmt.Fprintf(s.out, "  pending [%s] %s %s\n", entry.Invoke.ID, entry.Invoke.Type, entry.Invoke.Summary())
	}
	if patterns := s.controller.Approvals().Patterns(); len(patterns) > 0 {
		fmt.Fprintf(s.out, "approved patterns:\n")
		for _, pattern := range patterns {
			fmt.Fprintf(s.out, "  %s\n", pattern)
		}
	}
}
