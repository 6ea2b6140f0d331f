// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journald is a container logger that redirects a workload's
// stdout and stderr into the systemd journal.
//
// For every container the host is about to launch, [Logger.Prepare]
// creates two pipes and spawns one companion process per stream. Each
// companion reads its pipe and writes every line to the journal,
// tagged with the workload's labels plus FRAMEWORK_ID, EXECUTOR_ID and
// CONTAINER_ID. Prepare returns the two write ends; the host installs
// them as the container's stdout and stderr.
//
// Companions are detached. They run in their own session, are moved
// out of the agent's systemd unit when a companion slice is configured,
// and exit on their own once the container closes its end of the pipe.
// The Logger never waits for them.
//
// Requests are processed by one worker goroutine in arrival order.
// A failure at any step releases everything created so far: pipes are
// closed and a stdout companion that is already running is killed with
// its whole process tree.
//
// The module entry point is [Create], which parses the host's
// key/value parameters (see [LoadFlags]) and returns a running Logger.
package journald
