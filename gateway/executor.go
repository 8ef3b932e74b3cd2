// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/clawpal/clawpal/doctor"
)

// maxCapturedOutput bounds each of stdout and stderr in a result.
const maxCapturedOutput = 64 << 10

// Command is a system.run invocation ready to execute. Exactly one of
// Shell and Argv is set.
type Command struct {
	Shell   string
	Argv    []string
	Cwd     string
	Env     map[string]string
	Timeout time.Duration
}

// Result is the outcome of a command that ran. A non-zero ExitCode is a
// result, not an error.
type Result struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exitCode"`
	Success   bool   `json:"success"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Executor runs approved commands on a target.
type Executor interface {
	Run(ctx context.Context, target string, command Command) (Result, error)
}

// LocalExecutor runs commands on this host. It refuses any target other
// than "local".
type LocalExecutor struct {
	// Shell runs Command.Shell as Shell -lc. Defaults to "sh".
	Shell string
}

// Run executes command and captures its output.
func (executor LocalExecutor) Run(ctx context.Context, target string, command Command) (Result, error) {
	if target != "local" {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	var process *exec.Cmd
	switch {
	case command.Shell != "":
		shell := executor.Shell
		if shell == "" {
			shell = "sh"
		}
		process = exec.CommandContext(ctx, shell, "-lc", command.Shell)
	case len(command.Argv) > 0:
		process = exec.CommandContext(ctx, command.Argv[0], command.Argv[1:]...)
	default:
		return Result{}, errors.New("gateway: empty command")
	}
	process.Dir = command.Cwd
	if len(command.Env) > 0 {
		process.Env = os.Environ()
		for name, value := range command.Env {
			process.Env = append(process.Env, name+"="+value)
		}
	}
	setProcessGroup(process)

	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	process.Stdout = stdout
	process.Stderr = stderr

	err := process.Run()
	result := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if err == nil {
		result.Success = true
		return result, nil
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) && ctx.Err() == nil {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}
	if ctx.Err() != nil {
		return result, fmt.Errorf("gateway: command did not finish: %w", ctx.Err())
	}
	return result, fmt.Errorf("gateway: running command: %w", err)
}

// commandFromInvoke extracts the executable command from system.run
// arguments: "command" (string or argv), "cwd", "env", "timeoutMs".
func commandFromInvoke(invoke doctor.Invoke) (Command, error) {
	var command Command
	switch value := invoke.Args["command"].(type) {
	case string:
		command.Shell = value
	case []any:
		for _, element := range value {
			text, ok := element.(string)
			if !ok {
				return Command{}, fmt.Errorf("gateway: command argv element is %T, want string", element)
			}
			command.Argv = append(command.Argv, text)
		}
	default:
		return Command{}, fmt.Errorf("gateway: system.run without a command")
	}
	if command.Shell == "" && len(command.Argv) == 0 {
		return Command{}, errors.New("gateway: system.run with an empty command")
	}
	command.Cwd, _ = invoke.Args["cwd"].(string)
	if env, ok := invoke.Args["env"].(map[string]any); ok {
		command.Env = make(map[string]string, len(env))
		for name, value := range env {
			if text, ok := value.(string); ok {
				command.Env[name] = text
			}
		}
	}
	if milliseconds, ok := invoke.Args["timeoutMs"].(float64); ok && milliseconds > 0 {
		command.Timeout = time.Duration(milliseconds) * time.Millisecond
	}
	return command, nil
}

// cappedBuffer keeps the first limit bytes written and discards the
// rest, so a chatty command cannot exhaust memory.
type cappedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	truncated bool
}

func (capped *cappedBuffer) Write(data []byte) (int, error) {
	remaining := capped.limit - capped.buffer.Len()
	if remaining <= 0 {
		capped.truncated = len(data) > 0 || capped.truncated
		return len(data), nil
	}
	if len(data) > remaining {
		capped.buffer.Write(data[:remaining])
		capped.truncated = true
		return len(data), nil
	}
	capped.buffer.Write(data)
	return len(data), nil
}

func (capped *cappedBuffer) String() string {
	return capped.buffer.String()
}
