// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used for persistent state, such as
// the registry of launched companions.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// value always produces the same bytes, so state files can be compared
// byte-for-byte. Timestamps are encoded as RFC 3339 strings with
// nanoseconds so they survive a round trip exactly. Unknown fields are
// ignored on decode so older readers accept newer files.
//
// Callers import this package rather than fxamacker/cbor directly.
package codec
