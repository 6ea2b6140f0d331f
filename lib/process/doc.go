// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the binaries in cmd/.
//
// Errors that happen before a structured logger exists (flag parsing,
// a companion that cannot even decode its labels) are reported through
// [Fatal], which is the only place raw stderr output is written.
package process
