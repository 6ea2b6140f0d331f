// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companion

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultCgroupRoot is the cgroup v2 mount point.
const DefaultCgroupRoot = "/sys/fs/cgroup"

// DefaultSlice is the slice executors and their companions run in.
const DefaultSlice = "mesos_executors.slice"

// systemdRuntimeMarker exists iff systemd is the running init system
// (sd_booted(3)).
const systemdRuntimeMarker = "/run/systemd/system"

// SystemdLifetime moves companions out of the agent's systemd unit.
//
// systemd tracks a service by its cgroup. When the agent's unit is
// stopped or restarted, every process in the unit's cgroup is killed,
// including companions that are still draining a container's output.
// Moving the companion into a separate slice (for example
// "mesos_executors.slice") takes it out of the agent's unit so it keeps
// running until its pipe is closed.
//
// When systemd is not the init system or no slice is configured, Extend
// is a no-op.
type SystemdLifetime struct {
	// Slice is the cgroup directory, relative to CgroupRoot, that
	// receives companions.
	Slice string

	// CgroupRoot defaults to DefaultCgroupRoot.
	CgroupRoot string

	// RuntimeMarker overrides the sd_booted check path. Tests only.
	RuntimeMarker string
}

// Enabled reports whether Extend will move processes.
func (l SystemdLifetime) Enabled() bool {
	if l.Slice == "" {
		return false
	}
	marker := l.RuntimeMarker
	if marker == "" {
		marker = systemdRuntimeMarker
	}
	info, err := os.Stat(marker)
	return err == nil && info.IsDir()
}

// ProcsPath returns the cgroup.procs file of the companion slice.
func (l SystemdLifetime) ProcsPath() string {
	root := l.CgroupRoot
	if root == "" {
		root = DefaultCgroupRoot
	}
	return filepath.Join(root, l.Slice, "cgroup.procs")
}

// Extend moves pid into the companion slice.
func (l SystemdLifetime) Extend(pid int) error {
	if !l.Enabled() {
		return nil
	}

	procsPath := l.ProcsPath()
	if err := os.MkdirAll(filepath.Dir(procsPath), 0755); err != nil {
		return fmt.Errorf("creating cgroup %s: %w", filepath.Dir(procsPath), err)
	}

	file, err := os.OpenFile(procsPath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", procsPath, err)
	}
	if _, err := file.WriteString(strconv.Itoa(pid)); err != nil {
		file.Close()
		return fmt.Errorf("moving pid %d into %s: %w", pid, procsPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", procsPath, err)
	}
	return nil
}
