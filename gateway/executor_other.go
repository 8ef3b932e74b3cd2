// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package gateway

import "os/exec"

func setProcessGroup(*exec.Cmd) {}
