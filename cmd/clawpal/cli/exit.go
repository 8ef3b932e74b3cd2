// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError makes the process exit with Code without printing an error
// line. A command returns it when a non-zero exit is an answer, not a
// failure: "clawpal check" prints its findings and then exits 1 for an
// unhealthy gateway config, so scripts can branch on the status while
// people read the report.
//
// Anything else a command returns is printed as "error: ..." and exits
// 1.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. main looks for this method, not the
// concrete type, so any error can opt into a silent exit.
func (e *ExitError) ExitCode() int {
	return e.Code
}
