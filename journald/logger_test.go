// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journald

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/asekretenko/dcos-mesos-modules/lib/clock"
	"github.com/asekretenko/dcos-mesos-modules/lib/companion"
	"github.com/asekretenko/dcos-mesos-modules/lib/fault"
	"github.com/asekretenko/dcos-mesos-modules/lib/fdpipe"
	"github.com/asekretenko/dcos-mesos-modules/lib/labels"
	"github.com/asekretenko/dcos-mesos-modules/lib/testutil"
)

const testSandbox = "/var/lib/mesos/slaves/S0/frameworks/fw-1/executors/ex-1/runs/c-123"

// fakeSpawner records companions without starting processes. Each
// companion's stdin is duplicated so tests can read what the container
// would have written.
type fakeSpawner struct {
	mu      sync.Mutex
	nextPID int
	failAt  int // 1-based spawn number that fails; 0 never fails
	calls   int

	commands []companion.Command
	stdins   []*os.File
	killed   []int

	// release, when non-nil, blocks every Spawn until closed.
	release chan struct{}
	started chan struct{}
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{nextPID: 1000, started: make(chan struct{}, 16)}
}

func (f *fakeSpawner) Spawn(command companion.Command) (*companion.Process, error) {
	f.started <- struct{}{}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.commands = append(f.commands, command)
	if f.calls == f.failAt {
		return nil, unix.EAGAIN
	}

	fd, err := unix.Dup(int(command.Stdin.Fd()))
	if err != nil {
		return nil, err
	}
	f.stdins = append(f.stdins, os.NewFile(uintptr(fd), "companion-stdin"))

	f.nextPID++
	if command.OnSpawned != nil {
		if err := command.OnSpawned(f.nextPID); err != nil {
			return nil, err
		}
	}
	return &companion.Process{PID: f.nextPID}, nil
}

func (f *fakeSpawner) ExtendLifetime(pid int) error { return nil }

func (f *fakeSpawner) KillTree(pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeSpawner) Started() <-chan struct{} { return f.started }

func (f *fakeSpawner) closeStdins() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.stdins {
		file.Close()
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFlags(t *testing.T) Flags {
	t.Helper()
	flags := DefaultFlags()
	flags.CompanionDir = t.TempDir()
	return flags
}

func testEnviron() map[string]string {
	return map[string]string{
		"HOME":                      "/root",
		"LIBPROCESS_PORT":           "5051",
		"LIBPROCESS_ADVERTISE_PORT": "15051",
		"MESOS_NATIVE_LIBRARY":      "/opt/mesosphere/lib/libmesos.so",
	}
}

func newTestLogger(t *testing.T, spawner companion.Spawner, configure func(*Config)) *Logger {
	t.Helper()
	config := Config{
		Flags:   testFlags(t),
		Logger:  discardLogger(),
		Spawner: spawner,
		Environ: testEnviron,
	}
	if configure != nil {
		configure(&config)
	}
	logger := New(config)
	t.Cleanup(logger.Close)
	return logger
}

func testExecutor() ExecutorInfo {
	return ExecutorInfo{
		FrameworkID: "fw-1",
		ExecutorID:  "ex-1",
		Labels:      []labels.Label{{Key: "team", Value: "infra"}},
	}
}

func readLine(t *testing.T, file *os.File) string {
	t.Helper()
	file.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil {
		t.Fatalf("reading from %s: %v", file.Name(), err)
	}
	return line
}

func TestPrepareReturnsWritableDescriptors(t *testing.T) {
	spawner := newFakeSpawner()
	defer spawner.closeStdins()
	logger := newTestLogger(t, spawner, nil)

	info, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer info.Close()

	if len(spawner.commands) != 2 {
		t.Fatalf("spawned %d companions, want 2", len(spawner.commands))
	}

	if _, err := info.Out.WriteString("to stdout\n"); err != nil {
		t.Fatalf("writing stdout: %v", err)
	}
	if _, err := info.Err.WriteString("to stderr\n"); err != nil {
		t.Fatalf("writing stderr: %v", err)
	}
	if got := readLine(t, spawner.stdins[0]); got != "to stdout\n" {
		t.Errorf("stdout companion read %q", got)
	}
	if got := readLine(t, spawner.stdins[1]); got != "to stderr\n" {
		t.Errorf("stderr companion read %q", got)
	}
}

func TestPrepareCompanionArguments(t *testing.T) {
	spawner := newFakeSpawner()
	defer spawner.closeStdins()
	logger := newTestLogger(t, spawner, nil)

	info, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer info.Close()

	want, err := labels.Assemble(labels.Identity{
		FrameworkID: "fw-1",
		ExecutorID:  "ex-1",
		ContainerID: "c-123",
	}, testExecutor().Labels).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for index, command := range spawner.commands {
		if filepath.Base(command.Path) != companion.DefaultName {
			t.Errorf("command %d: Path = %q", index, command.Path)
		}
		if len(command.Args) != 2 || command.Args[0] != companion.DefaultName {
			t.Fatalf("command %d: Args = %q", index, command.Args)
		}
		if command.Args[1] != "--labels="+want {
			t.Errorf("command %d: labels argument = %q, want %q", index, command.Args[1], "--labels="+want)
		}
		if !command.NewSession {
			t.Errorf("command %d: NewSession not set", index)
		}

		environment := strings.Join(command.Env, "\n")
		for _, forbidden := range []string{"LIBPROCESS_PORT=", "LIBPROCESS_ADVERTISE_PORT="} {
			if strings.Contains(environment, forbidden) {
				t.Errorf("command %d: environment contains %s", index, forbidden)
			}
		}
		for _, required := range []string{"LIBPROCESS_NUM_WORKER_THREADS=8", "LD_LIBRARY_PATH=/opt/mesosphere/lib", "HOME=/root"} {
			if !strings.Contains(environment, required) {
				t.Errorf("command %d: environment missing %s", index, required)
			}
		}
	}
}

func TestStderrPipeFailureUnwindsStdout(t *testing.T) {
	spawner := newFakeSpawner()
	defer spawner.closeStdins()

	var stdoutWrite *os.File
	logger := newTestLogger(t, spawner, func(config *Config) {
		config.NewPipe = func(stream string) (*fdpipe.Pipe, error) {
			if stream == "stderr" {
				return nil, fault.ResourceError("create pipe", unix.EMFILE)
			}
			pipe, err := fdpipe.New()
			if err != nil {
				return nil, err
			}
			stdoutWrite = pipe.Write
			return pipe, nil
		}
	})

	info, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if err == nil {
		info.Close()
		t.Fatal("Prepare succeeded, want error")
	}
	if !errors.Is(err, fault.ErrResource) {
		t.Errorf("error %v is not a resource error", err)
	}
	if !strings.Contains(err.Error(), "stderr stream") || !strings.Contains(err.Error(), "c-123") {
		t.Errorf("error %q does not name the stream and container", err)
	}

	if len(spawner.commands) != 1 {
		t.Fatalf("spawned %d companions, want 1", len(spawner.commands))
	}
	if len(spawner.killed) != 1 || spawner.killed[0] != 1001 {
		t.Errorf("killed %v, want [1001]", spawner.killed)
	}
	if _, err := stdoutWrite.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("stdout write end still open: Write error = %v", err)
	}
}

func TestStderrSpawnFailureUnwindsStdout(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.failAt = 2
	defer spawner.closeStdins()

	var writeEnds []*os.File
	logger := newTestLogger(t, spawner, func(config *Config) {
		config.NewPipe = func(stream string) (*fdpipe.Pipe, error) {
			pipe, err := fdpipe.Builder{Name: stream}.New()
			if err != nil {
				return nil, err
			}
			writeEnds = append(writeEnds, pipe.Write)
			return pipe, nil
		}
	})

	_, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if !errors.Is(err, fault.ErrSpawn) {
		t.Fatalf("Prepare error = %v, want spawn error", err)
	}
	if !errors.Is(err, unix.EAGAIN) {
		t.Errorf("error %v does not carry the spawn cause", err)
	}
	if len(spawner.killed) != 1 || spawner.killed[0] != 1001 {
		t.Errorf("killed %v, want [1001]", spawner.killed)
	}
	for _, file := range writeEnds {
		if _, err := file.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
			t.Errorf("%s still open: Write error = %v", file.Name(), err)
		}
	}
}

func TestStdoutFailureSpawnsNothing(t *testing.T) {
	spawner := newFakeSpawner()
	logger := newTestLogger(t, spawner, func(config *Config) {
		config.NewPipe = func(stream string) (*fdpipe.Pipe, error) {
			return fdpipe.Builder{
				SetCloexec: func(int) error { return unix.EBADF },
			}.New()
		}
	})

	_, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Fatalf("Prepare error = %v, want configuration error", err)
	}
	if len(spawner.commands) != 0 || len(spawner.killed) != 0 {
		t.Errorf("spawned %d, killed %v; want nothing", len(spawner.commands), spawner.killed)
	}
}

func TestPrepareRunsInArrivalOrder(t *testing.T) {
	spawner := newFakeSpawner()
	defer spawner.closeStdins()
	logger := newTestLogger(t, spawner, nil)

	containers := []string{"c-1", "c-2", "c-3"}
	var pending []<-chan PrepareResult
	for _, container := range containers {
		pending = append(pending, logger.PrepareAsync(testExecutor(), "/sandboxes/"+container))
	}
	for index, results := range pending {
		result := testutil.RequireReceive(t, results, 5*time.Second, "result %d", index)
		if result.Err != nil {
			t.Fatalf("prepare %d: %v", index, result.Err)
		}
		result.Info.Close()
	}

	if len(spawner.commands) != 2*len(containers) {
		t.Fatalf("spawned %d companions, want %d", len(spawner.commands), 2*len(containers))
	}
	for index, command := range spawner.commands {
		decoded, err := labels.Decode(strings.TrimPrefix(command.Args[1], "--labels="))
		if err != nil {
			t.Fatalf("command %d: %v", index, err)
		}
		last := decoded.Labels[len(decoded.Labels)-1]
		if want := containers[index/2]; last.Key != labels.ContainerIDKey || last.Value != want {
			t.Errorf("command %d: last label %+v, want %s=%s", index, last, labels.ContainerIDKey, want)
		}
	}
}

func TestCloseWaitsForInFlightPrepare(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.release = make(chan struct{})
	defer spawner.closeStdins()
	logger := newTestLogger(t, spawner, nil)

	pending := logger.PrepareAsync(testExecutor(), testSandbox)
	testutil.RequireReceive(t, spawner.Started(), 5*time.Second, "first spawn")

	closed := make(chan struct{})
	go func() {
		logger.Close()
		close(closed)
	}()

	testutil.RequireOpen(t, closed, 100*time.Millisecond, "Close returned while a prepare was in flight")
	close(spawner.release)
	testutil.RequireClosed(t, closed, 5*time.Second, "Close after the prepare finished")

	result := testutil.RequireReceive(t, pending, time.Second, "prepare result")
	if result.Err != nil {
		t.Fatalf("in-flight prepare failed: %v", result.Err)
	}
	result.Info.Close()

	if state := logger.State(); state != Terminated {
		t.Errorf("State = %v, want %v", state, Terminated)
	}
}

func TestPrepareAfterClose(t *testing.T) {
	spawner := newFakeSpawner()
	logger := newTestLogger(t, spawner, nil)

	logger.Close()
	logger.Close()

	_, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if !errors.Is(err, ErrTerminated) {
		t.Errorf("Prepare after Close = %v, want ErrTerminated", err)
	}
	if len(spawner.commands) != 0 {
		t.Errorf("spawned %d companions after Close", len(spawner.commands))
	}
}

func TestZeroLoggerIsNotRunning(t *testing.T) {
	var logger Logger
	if state := logger.State(); state != Uninitialized {
		t.Errorf("State = %v, want %v", state, Uninitialized)
	}
	_, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("Prepare = %v, want ErrNotRunning", err)
	}
}

func TestAbandonedPrepareClosesDescriptors(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.release = make(chan struct{})
	defer spawner.closeStdins()

	var mu sync.Mutex
	var writeEnds []*os.File
	logger := newTestLogger(t, spawner, func(config *Config) {
		config.NewPipe = func(stream string) (*fdpipe.Pipe, error) {
			pipe, err := fdpipe.Builder{Name: stream}.New()
			if err != nil {
				return nil, err
			}
			mu.Lock()
			writeEnds = append(writeEnds, pipe.Write)
			mu.Unlock()
			return pipe, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-spawner.Started()
		cancel()
	}()

	_, err := logger.Prepare(ctx, testExecutor(), testSandbox)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Prepare = %v, want context.Canceled", err)
	}
	close(spawner.release)

	testutil.WaitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(writeEnds) != 2 {
			return false
		}
		for _, file := range writeEnds {
			if _, err := file.Write(nil); !errors.Is(err, os.ErrClosed) {
				return false
			}
		}
		return true
	}, "abandoned descriptors closed")
}

func TestPrepareRecordsCompanions(t *testing.T) {
	spawner := newFakeSpawner()
	defer spawner.closeStdins()
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stateDirectory := t.TempDir()

	logger := newTestLogger(t, spawner, func(config *Config) {
		config.Flags.StateDir = stateDirectory
		config.Clock = clock.Fake(startedAt)
	})

	info, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	info.Close()

	records, err := ReadRegistry(filepath.Join(stateDirectory, RegistryFile))
	if err != nil {
		t.Fatalf("ReadRegistry: %v", err)
	}
	want := Record{
		ContainerID: "c-123",
		FrameworkID: "fw-1",
		ExecutorID:  "ex-1",
		StdoutPID:   1001,
		StderrPID:   1002,
		StartedAt:   startedAt,
	}
	if len(records) != 1 {
		t.Fatalf("registry holds %d records, want 1", len(records))
	}
	got := records[0]
	if got.ContainerID != want.ContainerID || got.FrameworkID != want.FrameworkID ||
		got.ExecutorID != want.ExecutorID || got.StdoutPID != want.StdoutPID ||
		got.StderrPID != want.StderrPID || !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("record = %+v, want %+v", got, want)
	}
}

func TestRegistryFailureDoesNotFailPrepare(t *testing.T) {
	spawner := newFakeSpawner()
	defer spawner.closeStdins()

	blocker := filepath.Join(t.TempDir(), "not-a-directory")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	logger := newTestLogger(t, spawner, func(config *Config) {
		config.Flags.StateDir = filepath.Join(blocker, "state")
	})

	info, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	info.Close()
}

func TestNewPanicsOnNonPositiveWorkerThreads(t *testing.T) {
	for _, threads := range []int{0, -1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("New with %d worker threads did not panic", threads)
				}
			}()
			flags := testFlags(t)
			flags.WorkerThreads = threads
			New(Config{Flags: flags, Spawner: newFakeSpawner(), Logger: discardLogger()})
		}()
	}
}

func TestPrepareAsyncPanicsWithoutFrameworkID(t *testing.T) {
	logger := newTestLogger(t, newFakeSpawner(), nil)
	defer func() {
		if recover() == nil {
			t.Error("PrepareAsync without a framework ID did not panic")
		}
	}()
	logger.PrepareAsync(ExecutorInfo{ExecutorID: "ex-1"}, testSandbox)
}

// writeCompanionScript installs a shell companion that appends its
// --labels argument and everything it reads to files in captureDirectory.
func writeCompanionScript(t *testing.T, directory string) {
	t.Helper()
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$1\" >> \"$CAPTURE_DIR/args\"\n" +
		"exec cat >> \"$CAPTURE_DIR/output\"\n"
	if err := os.WriteFile(filepath.Join(directory, companion.DefaultName), []byte(script), 0755); err != nil {
		t.Fatalf("writing companion script: %v", err)
	}
}

func TestPrepareWithRealCompanions(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	captureDirectory := t.TempDir()
	flags := testFlags(t)
	writeCompanionScript(t, flags.CompanionDir)

	logger := New(Config{
		Flags:   flags,
		Logger:  discardLogger(),
		Spawner: companion.NewExecSpawner(nil, discardLogger()),
		Environ: func() map[string]string {
			return map[string]string{"CAPTURE_DIR": captureDirectory, "PATH": os.Getenv("PATH")}
		},
	})
	defer logger.Close()

	if err := logger.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	info, err := logger.Prepare(context.Background(), testExecutor(), testSandbox)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := info.Out.WriteString("line from stdout\n"); err != nil {
		t.Fatalf("writing stdout: %v", err)
	}
	if _, err := info.Err.WriteString("line from stderr\n"); err != nil {
		t.Fatalf("writing stderr: %v", err)
	}
	if err := info.Close(); err != nil {
		t.Fatalf("closing descriptors: %v", err)
	}

	outputPath := filepath.Join(captureDirectory, "output")
	testutil.WaitFor(t, 5*time.Second, func() bool {
		data, err := os.ReadFile(outputPath)
		if err != nil {
			return false
		}
		output := string(data)
		return strings.Contains(output, "line from stdout\n") && strings.Contains(output, "line from stderr\n")
	}, "companions forwarding both streams")

	args, err := os.ReadFile(filepath.Join(captureDirectory, "args"))
	if err != nil {
		t.Fatalf("reading companion arguments: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(args)), "\n") {
		if !strings.HasPrefix(line, "--labels=") || !strings.Contains(line, `"value":"c-123"`) {
			t.Errorf("companion argument %q", line)
		}
	}
}

func TestInitializeRejectsMissingCompanion(t *testing.T) {
	logger := newTestLogger(t, newFakeSpawner(), nil)
	err := logger.Initialize()
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Initialize = %v, want os.ErrNotExist", err)
	}
}

func TestInitializeRejectsNonExecutableCompanion(t *testing.T) {
	flags := testFlags(t)
	path := filepath.Join(flags.CompanionDir, companion.DefaultName)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0644); err != nil {
		t.Fatal(err)
	}
	logger := newTestLogger(t, newFakeSpawner(), func(config *Config) { config.Flags = flags })

	err := logger.Initialize()
	if err == nil || !strings.Contains(err.Error(), "not executable") {
		t.Errorf("Initialize = %v, want not-executable error", err)
	}
}
