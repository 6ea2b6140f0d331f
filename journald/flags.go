// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journald

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/asekretenko/dcos-mesos-modules/lib/companion"
	"github.com/asekretenko/dcos-mesos-modules/lib/fault"
)

// Module parameter keys.
const (
	CompanionDirKey   = "companion_dir"
	CompanionPathKey  = "companion_path"
	CompanionNameKey  = "companion_name"
	WorkerThreadsKey  = "libprocess_num_worker_threads"
	CompanionSliceKey = "companion_slice"
	CgroupRootKey     = "cgroup_root"
	StateDirKey       = "state_dir"
)

// DefaultWorkerThreads is the companion's libprocess worker thread count.
// Companions do very little work, so the runtime default (one thread per
// core) only wastes memory on large hosts.
const DefaultWorkerThreads = 8

// Flags is the parsed module configuration. It is read-only once a
// Logger has been constructed.
type Flags struct {
	// CompanionDir is the directory holding the companion binary.
	CompanionDir string

	// CompanionName is the companion binary's file name.
	CompanionName string

	// WorkerThreads is exported to companions as
	// LIBPROCESS_NUM_WORKER_THREADS.
	WorkerThreads int

	// CompanionSlice is the cgroup, relative to CgroupRoot, that
	// companions are moved into when systemd is running. Defaults to
	// companion.DefaultSlice; set it to "" to leave companions in the
	// agent's unit.
	CompanionSlice string

	CgroupRoot string

	// StateDir holds the companion registry. Empty disables it.
	StateDir string
}

// DefaultFlags returns the configuration used for unset parameters.
// CompanionDir has no default.
func DefaultFlags() Flags {
	return Flags{
		CompanionName:  companion.DefaultName,
		WorkerThreads:  DefaultWorkerThreads,
		CompanionSlice: companion.DefaultSlice,
		CgroupRoot:     companion.DefaultCgroupRoot,
	}
}

// Validate checks the configuration invariants.
func (f Flags) Validate() error {
	if f.CompanionDir == "" {
		return fault.ConfigurationError("flags", fmt.Errorf("missing required parameter %q", CompanionDirKey))
	}
	if !filepath.IsAbs(f.CompanionDir) {
		return fault.ConfigurationError("flags", fmt.Errorf("%s %q must be an absolute path", CompanionDirKey, f.CompanionDir))
	}
	if f.CompanionName == "" || strings.ContainsRune(f.CompanionName, '/') {
		return fault.ConfigurationError("flags", fmt.Errorf("%s %q must be a plain file name", CompanionNameKey, f.CompanionName))
	}
	if f.WorkerThreads <= 0 {
		return fault.ConfigurationError("flags", fmt.Errorf("%s must be greater than 0, got %d", WorkerThreadsKey, f.WorkerThreads))
	}
	if f.CompanionSlice != "" && !filepath.IsAbs(f.CgroupRoot) {
		return fault.ConfigurationError("flags", fmt.Errorf("%s %q must be an absolute path", CgroupRootKey, f.CgroupRoot))
	}
	if f.StateDir != "" && !filepath.IsAbs(f.StateDir) {
		return fault.ConfigurationError("flags", fmt.Errorf("%s %q must be an absolute path", StateDirKey, f.StateDir))
	}
	return nil
}

// Warning is a non-fatal configuration problem, such as use of a
// deprecated parameter.
type Warning struct {
	Key     string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("parameter %q: %s", w.Key, w.Message)
}

// LoadFlags parses module parameters into Flags. Parameters are applied
// in key order. Unknown keys, malformed values and values that fail
// [Flags.Validate] are configuration errors.
func LoadFlags(parameters map[string]string) (Flags, []Warning, error) {
	flags := DefaultFlags()
	var companionPath string

	flagSet := pflag.NewFlagSet("journald", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&flags.CompanionDir, CompanionDirKey, "", "directory containing the companion logger binary")
	flagSet.StringVar(&companionPath, CompanionPathKey, "", "deprecated alias of "+CompanionDirKey)
	flagSet.StringVar(&flags.CompanionName, CompanionNameKey, flags.CompanionName, "file name of the companion logger binary")
	flagSet.IntVar(&flags.WorkerThreads, WorkerThreadsKey, flags.WorkerThreads, "LIBPROCESS_NUM_WORKER_THREADS for companions")
	flagSet.StringVar(&flags.CompanionSlice, CompanionSliceKey, flags.CompanionSlice, "cgroup (relative to cgroup_root) that companions are moved into; empty disables the move")
	flagSet.StringVar(&flags.CgroupRoot, CgroupRootKey, flags.CgroupRoot, "cgroup filesystem mount point")
	flagSet.StringVar(&flags.StateDir, StateDirKey, "", "directory for the companion registry")
	if err := flagSet.MarkDeprecated(CompanionPathKey, "use "+CompanionDirKey+" instead"); err != nil {
		return Flags{}, nil, fault.ConfigurationError("flags", err)
	}

	keys := make([]string, 0, len(parameters))
	for key := range parameters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	arguments := make([]string, 0, len(keys))
	for _, key := range keys {
		arguments = append(arguments, "--"+key+"="+parameters[key])
	}

	if err := flagSet.Parse(arguments); err != nil {
		return Flags{}, nil, fault.ConfigurationError("flags", err)
	}

	var warnings []Warning
	flagSet.Visit(func(flag *pflag.Flag) {
		if flag.Deprecated != "" {
			warnings = append(warnings, Warning{Key: flag.Name, Message: "deprecated, " + flag.Deprecated})
		}
	})

	if flagSet.Changed(CompanionPathKey) {
		if flagSet.Changed(CompanionDirKey) {
			return Flags{}, warnings, fault.ConfigurationError("flags",
				errors.New(CompanionPathKey+" and "+CompanionDirKey+" are mutually exclusive"))
		}
		flags.CompanionDir = companionPath
	}

	if err := flags.Validate(); err != nil {
		return Flags{}, warnings, err
	}
	return flags, warnings, nil
}
