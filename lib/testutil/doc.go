// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so a test waiting on a prepare result or a companion exit
// fails instead of hanging. [WaitFor] polls a condition that has no
// channel to wait on, such as a process appearing in /proc.
// [RequireOpen] checks the opposite: that something is still blocked.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no dependencies on other packages in this module.
package testutil
