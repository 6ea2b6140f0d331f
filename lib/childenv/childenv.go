// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package childenv derives the environment of a companion process from
// the environment of the agent that spawns it.
//
// Companions link the same control-plane library as the agent, so they
// need most of its environment (library search paths, native library
// location), but must not inherit the agent's listening coordinates:
// a companion that saw LIBPROCESS_PORT would try to bind the port the
// agent already holds.
//
// [Compose] is a pure function over a snapshot map. The only function
// that reads process-wide state is [Snapshot].
package childenv

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Environment variable names understood by the control-plane library.
const (
	WorkerThreadsKey = "LIBPROCESS_NUM_WORKER_THREADS"
	LibraryPathKey   = "LD_LIBRARY_PATH"
	NativeLibraryKey = "MESOS_NATIVE_LIBRARY"
	listenPortKey    = "LIBPROCESS_PORT"
	advertisePortKey = "LIBPROCESS_ADVERTISE_PORT"
	listenAddressKey = "LIBPROCESS_IP"
	advertiseAddrKey = "LIBPROCESS_ADVERTISE_IP"
)

// listeningKeys are the entries that describe where the parent listens.
var listeningKeys = []string{
	listenPortKey,
	advertisePortKey,
	listenAddressKey,
	advertiseAddrKey,
}

// Snapshot returns the current process environment as a map. Entries
// without '=' are ignored; for duplicated keys the last one wins, which
// matches getenv(3) on glibc.
func Snapshot() map[string]string {
	return Parse(os.Environ())
}

// Parse converts KEY=VALUE entries into a map.
func Parse(entries []string) map[string]string {
	environment := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		environment[key] = value
	}
	return environment
}

// Compose returns the companion environment derived from base. base is
// not modified.
//
// Panics if workerThreads is not positive: the value comes from validated
// configuration, so a non-positive value here is a programming error.
func Compose(base map[string]string, workerThreads int) map[string]string {
	if workerThreads <= 0 {
		panic("childenv: worker thread count must be positive, got " + strconv.Itoa(workerThreads))
	}

	environment := make(map[string]string, len(base)+2)
	for key, value := range base {
		environment[key] = value
	}

	for _, key := range listeningKeys {
		delete(environment, key)
	}

	// Agents started from a build tree locate the native library through
	// MESOS_NATIVE_LIBRARY alone.
	if _, ok := environment[LibraryPathKey]; !ok {
		if native, ok := environment[NativeLibraryKey]; ok {
			environment[LibraryPathKey] = filepath.Dir(native)
		}
	}

	environment[WorkerThreadsKey] = strconv.Itoa(workerThreads)
	return environment
}

// Encode renders environment as sorted KEY=VALUE entries suitable for
// exec.Cmd.Env. Sorting keeps logs and tests deterministic.
func Encode(environment map[string]string) []string {
	keys := make([]string, 0, len(environment))
	for key := range environment {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]string, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, key+"="+environment[key])
	}
	return entries
}
