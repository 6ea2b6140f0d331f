// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journald

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/asekretenko/dcos-mesos-modules/lib/codec"
)

// RegistryFile is the registry's file name inside the state directory.
const RegistryFile = "companions.cbor"

// maxRegistryRecords bounds the registry; the oldest records are dropped
// first.
const maxRegistryRecords = 1024

// registryVersion is bumped on incompatible changes to Record.
const registryVersion = 1

// Record describes the companions launched for one container.
type Record struct {
	ContainerID string    `cbor:"container_id"`
	FrameworkID string    `cbor:"framework_id"`
	ExecutorID  string    `cbor:"executor_id,omitempty"`
	StdoutPID   int       `cbor:"stdout_pid"`
	StderrPID   int       `cbor:"stderr_pid"`
	StartedAt   time.Time `cbor:"started_at"`
}

type registryFile struct {
	Version int      `cbor:"version"`
	Records []Record `cbor:"records"`
}

// Registry is a CBOR file listing recently launched companions, so
// operators can map a container to the pids logging for it. It is only
// written from the Logger's worker goroutine.
type Registry struct {
	path string
}

// NewRegistry returns the registry stored in stateDirectory.
func NewRegistry(stateDirectory string) *Registry {
	return &Registry{path: filepath.Join(stateDirectory, RegistryFile)}
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// Append adds record, dropping the oldest records beyond the bound, and
// rewrites the file atomically.
func (r *Registry) Append(record Record) error {
	records, err := ReadRegistry(r.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	records = append(records, record)
	if excess := len(records) - maxRegistryRecords; excess > 0 {
		records = records[excess:]
	}

	data, err := codec.Marshal(registryFile{Version: registryVersion, Records: records})
	if err != nil {
		return fmt.Errorf("encoding companion registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return writeFileAtomic(r.path, data)
}

// ReadRegistry returns the records stored at path, oldest first. When the
// file does not exist the error wraps fs.ErrNotExist.
func ReadRegistry(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading companion registry: %w", err)
	}

	var file registryFile
	if err := codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding companion registry %s: %w", path, err)
	}
	if file.Version != registryVersion {
		return nil, fmt.Errorf("companion registry %s has version %d, want %d", path, file.Version, registryVersion)
	}
	return file.Records, nil
}

// writeFileAtomic writes data to a temporary file next to path, syncs it
// and renames it into place. Readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating temporary registry file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary registry file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary registry file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary registry file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming registry file into place: %w", err)
	}

	if directory, err := os.Open(filepath.Dir(path)); err == nil {
		directory.Sync()
		directory.Close()
	}
	return nil
}
