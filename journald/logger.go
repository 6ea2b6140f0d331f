// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journald

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/asekretenko/dcos-mesos-modules/lib/binhash"
	"github.com/asekretenko/dcos-mesos-modules/lib/childenv"
	"github.com/asekretenko/dcos-mesos-modules/lib/clock"
	"github.com/asekretenko/dcos-mesos-modules/lib/companion"
	"github.com/asekretenko/dcos-mesos-modules/lib/fdpipe"
	"github.com/asekretenko/dcos-mesos-modules/lib/labels"
	"github.com/asekretenko/dcos-mesos-modules/lib/version"
)

// State is the lifecycle state of a Logger.
type State int

const (
	// Uninitialized is the state of a Logger not built by New.
	Uninitialized State = iota

	// Running accepts and processes prepare requests.
	Running

	// Terminated rejects new requests. Requests enqueued before Close
	// have completed.
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrTerminated is returned for requests made after Close.
	ErrTerminated = errors.New("journald: logger terminated")

	// ErrNotRunning is returned for requests on a Logger not built by New.
	ErrNotRunning = errors.New("journald: logger not running")
)

// ExecutorInfo identifies the workload whose output is being captured.
type ExecutorInfo struct {
	FrameworkID string
	ExecutorID  string

	// Labels are attached to every journal entry ahead of the identity
	// labels.
	Labels []labels.Label
}

// SubprocessInfo holds the descriptors the host installs as the
// container's stdout and stderr. The caller owns both.
type SubprocessInfo struct {
	Out *os.File
	Err *os.File
}

// Close closes both descriptors.
func (s *SubprocessInfo) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Out != nil {
		errs = append(errs, s.Out.Close())
	}
	if s.Err != nil {
		errs = append(errs, s.Err.Close())
	}
	return errors.Join(errs...)
}

// PrepareResult is the outcome of one prepare request. Exactly one of
// Info and Err is set.
type PrepareResult struct {
	Info *SubprocessInfo
	Err  error
}

// Config configures a Logger.
type Config struct {
	Flags Flags

	Logger *slog.Logger

	// Spawner starts companions. Nil selects a companion.ExecSpawner
	// with a SystemdLifetime built from Flags.
	Spawner companion.Spawner

	// NewPipe creates the pipe for a stream. Nil uses fdpipe.
	NewPipe func(stream string) (*fdpipe.Pipe, error)

	// Environ returns the agent environment that companion environments
	// are composed from. Nil uses childenv.Snapshot.
	Environ func() map[string]string

	// Clock timestamps registry records. Nil uses the real clock.
	Clock clock.Clock
}

// requestQueueDepth bounds how many prepare requests may wait for the
// worker before PrepareAsync blocks.
const requestQueueDepth = 64

type request struct {
	executor         ExecutorInfo
	sandboxDirectory string
	result           chan<- PrepareResult
}

// Logger is the container logger. All prepare requests run on one
// worker goroutine in arrival order.
type Logger struct {
	flags      Flags
	logger     *slog.Logger
	supervisor *companion.Supervisor
	newPipe    func(stream string) (*fdpipe.Pipe, error)
	environ    func() map[string]string
	clock      clock.Clock
	registry   *Registry

	// mu guards state and the send side of requests. PrepareAsync holds
	// it shared while enqueueing; Close holds it exclusively to close
	// the channel.
	mu       sync.RWMutex
	state    State
	requests chan request
	done     chan struct{}
}

// New returns a running Logger. It panics if config.Flags.WorkerThreads
// is not positive.
func New(config Config) *Logger {
	if config.Flags.WorkerThreads <= 0 {
		panic(fmt.Sprintf("journald: worker thread count must be positive, got %d", config.Flags.WorkerThreads))
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	spawner := config.Spawner
	if spawner == nil {
		spawner = companion.NewExecSpawner(companion.SystemdLifetime{
			Slice:      config.Flags.CompanionSlice,
			CgroupRoot: config.Flags.CgroupRoot,
		}, logger)
	}
	newPipe := config.NewPipe
	if newPipe == nil {
		newPipe = func(stream string) (*fdpipe.Pipe, error) {
			return fdpipe.Builder{Name: stream}.New()
		}
	}
	environ := config.Environ
	if environ == nil {
		environ = childenv.Snapshot
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	l := &Logger{
		flags:      config.Flags,
		logger:     logger,
		supervisor: companion.NewSupervisor(spawner, config.Flags.CompanionDir, config.Flags.CompanionName, logger),
		newPipe:    newPipe,
		environ:    environ,
		clock:      clk,
		requests:   make(chan request, requestQueueDepth),
		done:       make(chan struct{}),
	}
	if config.Flags.StateDir != "" {
		l.registry = NewRegistry(config.Flags.StateDir)
	}

	l.state = Running
	go l.run()
	return l
}

// State returns the current lifecycle state.
func (l *Logger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Initialize checks that the companion binary exists and is executable,
// and logs its digest so the deployed build can be identified.
func (l *Logger) Initialize() error {
	path := l.supervisor.BinaryPath()

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("companion logger at %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("companion logger at %q is not a regular file (mode %s)", path, info.Mode())
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("companion logger at %q is not executable (mode %s)", path, info.Mode())
	}

	digest, err := binhash.HashFile(path)
	if err != nil {
		return fmt.Errorf("hashing companion logger: %w", err)
	}
	l.logger.Info("companion logger binary",
		"path", path,
		"blake3", binhash.FormatDigest(digest),
		"module_version", version.Info(),
		"worker_threads", l.flags.WorkerThreads,
		"companion_slice", l.flags.CompanionSlice,
	)
	return nil
}

// PrepareAsync enqueues a request to capture the output of the container
// whose sandbox is sandboxDirectory. The returned channel receives exactly
// one result.
//
// It panics if executor.FrameworkID is empty.
func (l *Logger) PrepareAsync(executor ExecutorInfo, sandboxDirectory string) <-chan PrepareResult {
	if executor.FrameworkID == "" {
		panic("journald: executor has no framework ID")
	}

	result := make(chan PrepareResult, 1)

	l.mu.RLock()
	defer l.mu.RUnlock()
	switch l.state {
	case Running:
		l.requests <- request{executor: executor, sandboxDirectory: sandboxDirectory, result: result}
	case Terminated:
		result <- PrepareResult{Err: ErrTerminated}
	default:
		result <- PrepareResult{Err: ErrNotRunning}
	}
	return result
}

// Prepare is PrepareAsync followed by a wait for the result.
//
// If ctx is done first, Prepare returns ctx.Err(). The request still
// runs to completion; descriptors it produces are closed.
func (l *Logger) Prepare(ctx context.Context, executor ExecutorInfo, sandboxDirectory string) (*SubprocessInfo, error) {
	pending := l.PrepareAsync(executor, sandboxDirectory)
	select {
	case result := <-pending:
		return result.Info, result.Err
	case <-ctx.Done():
		go func() {
			result := <-pending
			if result.Info != nil {
				l.logger.Warn("closing descriptors of abandoned prepare",
					"sandbox", sandboxDirectory,
					"framework_id", executor.FrameworkID,
				)
				result.Info.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close stops accepting requests and waits until every request enqueued
// before it has finished. Companions already spawned keep running.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.state != Running {
		l.mu.Unlock()
		return
	}
	l.state = Terminated
	close(l.requests)
	l.mu.Unlock()

	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for pending := range l.requests {
		info, err := l.prepare(pending.executor, pending.sandboxDirectory)
		pending.result <- PrepareResult{Info: info, Err: err}
	}
}

// prepare launches both companions. On failure everything created so far
// is released: owned descriptors are closed and launched companions are
// killed.
func (l *Logger) prepare(executor ExecutorInfo, sandboxDirectory string) (*SubprocessInfo, error) {
	identity := labels.IdentityFromSandbox(executor.FrameworkID, executor.ExecutorID, sandboxDirectory)
	logger := l.logger.With("container_id", identity.ContainerID, "framework_id", identity.FrameworkID)

	environment := childenv.Encode(childenv.Compose(l.environ(), l.flags.WorkerThreads))
	logger.Debug("companion environment", "environment", environment)

	serializedLabels, err := labels.Assemble(identity, executor.Labels).Encode()
	if err != nil {
		return nil, fmt.Errorf("preparing container %s: encoding labels: %w", identity.ContainerID, err)
	}

	var (
		launched  []*companion.Handle
		owned     []*os.File
		succeeded bool
	)
	defer func() {
		if succeeded {
			return
		}
		for _, handle := range launched {
			if killErr := l.supervisor.Kill(handle); killErr != nil {
				logger.Error("killing companion during unwind", "error", killErr)
			}
		}
		for _, file := range owned {
			file.Close()
		}
	}()

	stdout, stdoutHandle, err := l.launchStream("stdout", environment, serializedLabels)
	if err != nil {
		return nil, fmt.Errorf("preparing container %s: %w", identity.ContainerID, err)
	}
	launched = append(launched, stdoutHandle)
	owned = append(owned, stdout)

	stderr, stderrHandle, err := l.launchStream("stderr", environment, serializedLabels)
	if err != nil {
		return nil, fmt.Errorf("preparing container %s: %w", identity.ContainerID, err)
	}
	launched = append(launched, stderrHandle)
	owned = append(owned, stderr)

	succeeded = true

	if l.registry != nil {
		record := Record{
			ContainerID: identity.ContainerID,
			FrameworkID: identity.FrameworkID,
			ExecutorID:  identity.ExecutorID,
			StdoutPID:   stdoutHandle.PID,
			StderrPID:   stderrHandle.PID,
			StartedAt:   l.clock.Now().UTC(),
		}
		if err := l.registry.Append(record); err != nil {
			logger.Warn("recording companions", "path", l.registry.Path(), "error", err)
		}
	}

	return &SubprocessInfo{Out: stdout, Err: stderr}, nil
}

// launchStream creates the pipe for stream and starts its companion on
// the read end. It returns the write end, which the caller then owns.
func (l *Logger) launchStream(stream string, environment []string, serializedLabels string) (*os.File, *companion.Handle, error) {
	pipe, err := l.newPipe(stream)
	if err != nil {
		return nil, nil, fmt.Errorf("%s stream: %w", stream, err)
	}
	defer pipe.Close()

	handle, err := l.supervisor.Launch(stream, pipe.TakeRead(), environment, serializedLabels)
	if err != nil {
		return nil, nil, fmt.Errorf("%s stream: %w", stream, err)
	}
	return pipe.TakeWrite(), handle, nil
}
