// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/asekretenko/dcos-mesos-modules/lib/fault"
)

// DefaultName is the file name of the companion binary.
const DefaultName = "mesos-journald-logger"

// LabelsFlag is the companion flag carrying the serialized label set.
const LabelsFlag = "labels"

// Handle identifies a launched companion.
type Handle struct {
	PID    int
	Stream string

	// Done is closed when the companion has exited, if the spawner
	// reaps its children.
	Done <-chan struct{}
}

// Supervisor launches companions for one configured binary.
type Supervisor struct {
	spawner    Spawner
	name       string
	binaryPath string
	logger     *slog.Logger
}

// NewSupervisor returns a Supervisor that launches
// <directory>/<name>. An empty name selects DefaultName.
func NewSupervisor(spawner Spawner, directory, name string, logger *slog.Logger) *Supervisor {
	if name == "" {
		name = DefaultName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		spawner:    spawner,
		name:       name,
		binaryPath: filepath.Join(directory, name),
		logger:     logger,
	}
}

// BinaryPath returns the absolute path of the companion executable.
func (s *Supervisor) BinaryPath() string { return s.binaryPath }

// Launch starts a companion draining stdin (the read end of stream's
// pipe) into the journal.
//
// Launch takes ownership of stdin and closes its own copy on every path:
// on success the companion holds the only remaining read end, so the
// pipe's lifetime is tied to the companion's.
func (s *Supervisor) Launch(stream string, stdin *os.File, environment []string, serializedLabels string) (*Handle, error) {
	defer stdin.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return nil, fault.ResourceError(fmt.Sprintf("open %s for %s logger", os.DevNull, stream), err)
	}
	defer devNull.Close()

	process, err := s.spawner.Spawn(Command{
		Path:       s.binaryPath,
		Args:       []string{s.name, "--" + LabelsFlag + "=" + serializedLabels},
		Env:        environment,
		Stdin:      stdin,
		Stdout:     devNull,
		Stderr:     os.Stderr,
		NewSession: true,
		OnSpawned:  s.spawner.ExtendLifetime,
	})
	if err != nil {
		return nil, fault.SpawnError(fmt.Sprintf("spawn %s logger", stream), err)
	}

	s.logger.Info("companion logger started",
		"stream", stream,
		"pid", process.PID,
		"binary", s.binaryPath,
	)
	return &Handle{PID: process.PID, Stream: stream, Done: process.Done}, nil
}

// Kill terminates the companion and every process it spawned.
func (s *Supervisor) Kill(handle *Handle) error {
	if err := s.spawner.KillTree(handle.PID); err != nil {
		return fmt.Errorf("killing %s logger (pid %d): %w", handle.Stream, handle.PID, err)
	}
	s.logger.Warn("companion logger killed", "stream", handle.Stream, "pid", handle.PID)
	return nil
}
