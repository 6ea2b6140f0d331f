// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash identifies executables by content.
//
// The logger module records the BLAKE3 digest of the companion binary
// it validated at initialization. Companions outlive the agent, so a
// journal full of entries from old companions is only diagnosable if
// the agent log says which build of the companion it launched; the path
// alone does not change across in-place upgrades.
//
//   - [HashFile] streams a file through BLAKE3 with constant memory.
//   - [FormatDigest] renders a digest as lowercase hex for log output.
//
// This package has no dependencies on other packages in this module.
package binhash
