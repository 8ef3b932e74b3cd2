// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clawpal/clawpal/doctor"
)

func TestLocalExecutorRunsShell(t *testing.T) {
	result, err := LocalExecutor{}.Run(context.Background(), "local", Command{Shell: "echo out; echo err >&2"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasSuffix(result.Stdout, "out\n") || !strings.HasSuffix(result.Stderr, "err\n") || !result.Success || result.ExitCode != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestLocalExecutorExitCodeIsAResult(t *testing.T) {
	result, err := LocalExecutor{}.Run(context.Background(), "local", Command{Argv: []string{"sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatalf("non-zero exit returned error: %v", err)
	}
	if result.Success || result.ExitCode != 3 {
		t.Errorf("result = %+v, want exit 3", result)
	}
}

func TestLocalExecutorEnvAndCwd(t *testing.T) {
	directory := t.TempDir()
	result, err := LocalExecutor{}.Run(context.Background(), "local", Command{
		Shell: `printf '%s %s' "$CLAWPAL_MARKER" "$(pwd)"`,
		Cwd:   directory,
		Env:   map[string]string{"CLAWPAL_MARKER": "set"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Stdout, "set /") || !strings.HasSuffix(result.Stdout, directory) {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestLocalExecutorTimeout(t *testing.T) {
	start := time.Now()
	_, err := LocalExecutor{}.Run(context.Background(), "local", Command{Shell: "sleep 30", Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("sleep outlived its timeout without error")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestLocalExecutorRefusesRemoteTargets(t *testing.T) {
	_, err := LocalExecutor{}.Run(context.Background(), "prod-3", Command{Shell: "true"})
	if !errors.Is(err, ErrUnsupportedTarget) {
		t.Errorf("error = %v, want ErrUnsupportedTarget", err)
	}
	if _, err := (LocalExecutor{}).Run(context.Background(), "local", Command{}); err == nil {
		t.Error("empty command ran")
	}
}

func TestCappedBuffer(t *testing.T) {
	capped := &cappedBuffer{limit: 5}
	for _, chunk := range []string{"abc", "defg", "hij"} {
		if n, err := capped.Write([]byte(chunk)); n != len(chunk) || err != nil {
			t.Fatalf("Write(%q) = %d, %v", chunk, n, err)
		}
	}
	if capped.String() != "abcde" || !capped.truncated {
		t.Errorf("buffer = %q truncated %v", capped.String(), capped.truncated)
	}

	exact := &cappedBuffer{limit: 3}
	exact.Write([]byte("abc"))
	if exact.truncated {
		t.Error("exact fit marked truncated")
	}
}

func TestCommandFromInvoke(t *testing.T) {
	command, err := commandFromInvoke(doctor.Invoke{Args: map[string]any{
		"command":   []any{"ls", "-l"},
		"cwd":       "/tmp",
		"env":       map[string]any{"A": "1", "B": 2.0},
		"timeoutMs": 1500.0,
	}})
	if err != nil {
		t.Fatalf("commandFromInvoke: %v", err)
	}
	if len(command.Argv) != 2 || command.Cwd != "/tmp" || command.Env["A"] != "1" || len(command.Env) != 1 {
		t.Errorf("command = %+v", command)
	}
	if command.Timeout != 1500*time.Millisecond {
		t.Errorf("timeout = %v", command.Timeout)
	}

	command, err = commandFromInvoke(doctor.Invoke{Args: map[string]any{"command": "uptime"}})
	if err != nil || command.Shell != "uptime" {
		t.Errorf("shell command = %+v, %v", command, err)
	}

	for _, args := range []map[string]any{
		nil,
		{"command": ""},
		{"command": []any{}},
		{"command": []any{"ls", 3.0}},
	} {
		if _, err := commandFromInvoke(doctor.Invoke{Args: args}); err == nil {
			t.Errorf("commandFromInvoke(%v) succeeded", args)
		}
	}
}
