// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// mesos-journald-logger is the companion process of the journald container
// logger. One instance runs per container stream. It reads the stream from
// stdin and writes each line to the systemd journal as a separate entry,
// with every label attached as a journal field.
//
// The container logger spawns it with:
//
//	mesos-journald-logger --labels='{"labels":[{"key":"FRAMEWORK_ID","value":"..."}]}'
//
// stdin is the read end of the stream's pipe and stdout is /dev/null.
// The process exits when every writer has closed the pipe. Lines longer
// than --max-entry-bytes are split across entries. When the journal
// socket is unavailable, entries are written to stderr instead so output
// is not silently lost.
package main
