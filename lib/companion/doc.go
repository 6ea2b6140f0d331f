// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package companion launches the detached logger processes that drain a
// container's output pipes into the journal.
//
// A companion is spawned once per stream. [Supervisor.Launch] attaches the
// read end of the stream's pipe as the companion's stdin, discards its
// stdout, lets it share the agent's stderr (so companion diagnostics show
// up in the agent's own log), and passes the serialized label set as a
// single --labels flag. The companion runs in a new session so signals
// aimed at the agent's process group do not reach it, and a parent hook
// extends its lifetime beyond the agent's (see [SystemdLifetime]) so a
// stopped or restarting agent does not drop log data still in flight.
//
// Process primitives sit behind the narrow [Spawner] interface. The
// production backend is [ExecSpawner]; tests substitute a fake to drive
// the failure and unwind paths deterministically.
//
// Once launched, a companion is not supervised: it exits on its own when
// the last write end of its pipe is closed. [ExecSpawner] still reaps it
// so exited companions never linger as zombies, and logs the exit.
package companion
