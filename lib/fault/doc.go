// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the error taxonomy shared by the log capture
// pipeline. Every fallible step of preparing a capture reports an [Error]
// carrying one of three kinds:
//
//   - [Resource]: the OS could not allocate a pipe or descriptor.
//   - [Configuration]: a descriptor flag could not be set, or module
//     parameters failed validation.
//   - [Spawn]: the companion binary failed to launch.
//
// Errors carry the name of the step that failed and wrap the underlying
// cause, so the rendered message reads as a cause chain ("create stderr
// pipe: too many open files"). Callers test the kind with errors.Is
// against [ErrResource], [ErrConfiguration], or [ErrSpawn], and recover
// the step with errors.As.
//
// This package has no dependencies on other packages in this module.
package fault
