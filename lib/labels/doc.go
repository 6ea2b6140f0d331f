// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package labels assembles and serializes the key/value tags attached to
// every journal entry a companion writes, so entries can be correlated
// with the workload that produced them.
//
// [Assemble] produces an ordered [Labels] set: the workload's own labels
// first, then FRAMEWORK_ID, EXECUTOR_ID and CONTAINER_ID. Keys are not
// deduplicated and values are not escaped; duplicates pass through in
// order. [Labels.Encode] renders the set as the JSON mapping of the
// generic Labels protocol message,
//
//	{"labels":[{"key":"FRAMEWORK_ID","value":"f1"}, ...]}
//
// which travels to the companion as a single --labels argument. [Decode]
// is the inverse used by the companion.
package labels
