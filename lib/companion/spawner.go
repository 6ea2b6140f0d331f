// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import "os"

// Command describes a process to spawn.
type Command struct {
	// Path is the absolute path of the executable.
	Path string

	// Args is the full argv, including argv[0].
	Args []string

	// Env is the complete child environment as KEY=VALUE entries.
	Env []string

	// Stdin, Stdout and Stderr become fds 0, 1 and 2 of the child. The
	// spawner does not close them; the caller keeps ownership of its
	// copies.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// NewSession makes the child a session leader (setsid) before exec.
	NewSession bool

	// OnSpawned runs in the parent after the child has started. A
	// non-nil error kills the child and fails the spawn.
	OnSpawned func(pid int) error
}

// Process is a spawned child.
type Process struct {
	PID int

	// Done is closed once the child has exited and been reaped. Nil when
	// the backend does not reap.
	Done <-chan struct{}
}

// Spawner abstracts the platform process primitives.
type Spawner interface {
	// Spawn starts command and runs its OnSpawned hook.
	Spawn(command Command) (*Process, error)

	// ExtendLifetime detaches pid's survival from the agent's own
	// service lifetime.
	ExtendLifetime(pid int) error

	// KillTree forcibly terminates pid and all of its descendants.
	KillTree(pid int) error
}
