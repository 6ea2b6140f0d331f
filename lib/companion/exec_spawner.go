// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// Lifetime extends a spawned process's lifetime beyond the agent's.
type Lifetime interface {
	Extend(pid int) error
}

// ExecSpawner is the os/exec backed Spawner.
type ExecSpawner struct {
	// Lifetime is applied by ExtendLifetime. Nil disables lifetime
	// extension.
	Lifetime Lifetime

	Logger *slog.Logger
}

// NewExecSpawner returns an ExecSpawner using lifetime for ExtendLifetime.
func NewExecSpawner(lifetime Lifetime, logger *slog.Logger) *ExecSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSpawner{Lifetime: lifetime, Logger: logger}
}

// Spawn starts command. The child is reaped by a background goroutine;
// the returned Process.Done is closed once that has happened.
func (s *ExecSpawner) Spawn(command Command) (*Process, error) {
	cmd := &exec.Cmd{
		Path:   command.Path,
		Args:   command.Args,
		Env:    command.Env,
		Stdin:  command.Stdin,
		Stdout: command.Stdout,
		Stderr: command.Stderr,
	}
	if command.NewSession {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	}

	// Stdin/Stdout/Stderr are *os.File, so os/exec hands the descriptors
	// straight to the child and starts no copying goroutines.
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	pid := cmd.Process.Pid
	done := make(chan struct{})
	go s.reap(cmd, done)

	if command.OnSpawned != nil {
		if err := command.OnSpawned(pid); err != nil {
			if killErr := s.KillTree(pid); killErr != nil {
				s.logger().Error("killing child after failed parent hook",
					"pid", pid,
					"error", killErr,
				)
			}
			<-done
			return nil, fmt.Errorf("parent hook for pid %d: %w", pid, err)
		}
	}

	return &Process{PID: pid, Done: done}, nil
}

func (s *ExecSpawner) reap(cmd *exec.Cmd, done chan<- struct{}) {
	defer close(done)

	err := cmd.Wait()
	pid := cmd.Process.Pid

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		s.logger().Info("companion exited", "pid", pid, "exit_code", 0)
	case errors.As(err, &exitErr):
		s.logger().Warn("companion exited", "pid", pid, "exit_code", exitErr.ExitCode(), "state", exitErr.String())
	default:
		s.logger().Error("waiting for companion", "pid", pid, "error", err)
	}
}

// ExtendLifetime applies the configured Lifetime, if any.
func (s *ExecSpawner) ExtendLifetime(pid int) error {
	if s.Lifetime == nil {
		return nil
	}
	return s.Lifetime.Extend(pid)
}

// KillTree sends SIGKILL to pid, every descendant of pid, and pid's
// process group. The tree is collected before any signal is sent:
// killing the root first would reparent its children to init and hide
// them from the walk.
func (s *ExecSpawner) KillTree(pid int) error {
	tree, err := Descendants(pid)
	if err != nil {
		s.logger().Warn("listing companion descendants, killing root and group only",
			"pid", pid,
			"error", err,
		)
	}

	var errs []error
	for _, target := range append([]int{pid}, tree...) {
		if err := unix.Kill(target, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill %d: %w", target, err))
		}
	}

	// Companions are session (and so process group) leaders. Processes
	// that re-parented away from the tree still share the group.
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) && !errors.Is(err, unix.EPERM) {
		errs = append(errs, fmt.Errorf("kill process group %d: %w", pid, err))
	}
	return errors.Join(errs...)
}

func (s *ExecSpawner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Descendants returns the pids of every live descendant of pid, parents
// before children.
func Descendants(pid int) ([]int, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	children := make(map[int32][]int32, len(processes))
	for _, candidate := range processes {
		parent, err := candidate.Ppid()
		if err != nil {
			// Exited between listing and inspection.
			continue
		}
		children[parent] = append(children[parent], candidate.Pid)
	}

	var descendants []int
	queue := []int32{int32(pid)}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			descendants = append(descendants, int(child))
			queue = append(queue, child)
		}
	}
	return descendants, nil
}
