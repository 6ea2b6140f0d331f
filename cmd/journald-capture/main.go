// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/asekretenko/dcos-mesos-modules/journald"
	"github.com/asekretenko/dcos-mesos-modules/lib/labels"
	"github.com/asekretenko/dcos-mesos-modules/lib/process"
	"github.com/asekretenko/dcos-mesos-modules/lib/version"
)

const programName = "journald-capture"

func main() {
	code, err := run(os.Args[1:], newLogger(false))
	process.Exit(programName, code, err)
}

func newLogger(verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

type options struct {
	configPath   string
	executorPath string
	frameworkID  string
	executorID   string
	sandbox      string
	parameters   []string
	labels       []string
	verbose      bool
	showVersion  bool
	command      []string
}

func parseFlags(args []string) (options, error) {
	var parsed options
	flagSet := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&parsed.configPath, "config", "", "YAML file of module parameters")
	flagSet.StringVar(&parsed.executorPath, "executor", "", "JSONC executor description")
	flagSet.StringVar(&parsed.frameworkID, "framework-id", "", "framework ID (overrides the executor file)")
	flagSet.StringVar(&parsed.executorID, "executor-id", "", "executor ID (overrides the executor file)")
	flagSet.StringVar(&parsed.sandbox, "sandbox", "", "sandbox directory; its name is the container ID (default: working directory)")
	flagSet.StringArrayVar(&parsed.parameters, "param", nil, "module parameter KEY=VALUE (repeatable)")
	flagSet.StringArrayVar(&parsed.labels, "label", nil, "label KEY=VALUE appended to the executor's labels (repeatable)")
	flagSet.BoolVar(&parsed.verbose, "verbose", false, "log at debug level")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if parsed.showVersion {
		return parsed, nil
	}
	parsed.command = flagSet.Args()
	if len(parsed.command) == 0 {
		return options{}, errors.New("usage: " + programName + " [flags] -- <command> [args...]")
	}
	return parsed, nil
}

// run captures one command and returns its exit code.
func run(args []string, logger *slog.Logger) (int, error) {
	parsed, err := parseFlags(args)
	if err != nil {
		return 2, err
	}
	if parsed.showVersion {
		fmt.Println(version.Info())
		return 0, nil
	}
	if parsed.verbose {
		logger = newLogger(true)
	}

	values, err := loadModuleConfig(parsed.configPath)
	if err != nil {
		return 2, err
	}
	overrides, err := splitAssignments("param", parsed.parameters)
	if err != nil {
		return 2, err
	}
	for _, pair := range overrides {
		values[pair[0]] = pair[1]
	}

	executor, err := loadExecutor(parsed.executorPath)
	if err != nil {
		return 2, err
	}
	if parsed.frameworkID != "" {
		executor.FrameworkID = parsed.frameworkID
	}
	if parsed.executorID != "" {
		executor.ExecutorID = parsed.executorID
	}
	extraLabels, err := splitAssignments("label", parsed.labels)
	if err != nil {
		return 2, err
	}
	for _, pair := range extraLabels {
		executor.Labels = append(executor.Labels, labels.Label{Key: pair[0], Value: pair[1]})
	}
	if executor.FrameworkID == "" {
		return 2, errors.New("a framework ID is required (--framework-id or the executor file)")
	}

	sandbox := parsed.sandbox
	if sandbox == "" {
		if sandbox, err = os.Getwd(); err != nil {
			return 1, fmt.Errorf("determining sandbox: %w", err)
		}
	}

	containerLogger := journald.Create(toParameters(values), logger)
	if containerLogger == nil {
		return 2, errors.New("invalid module parameters")
	}
	defer containerLogger.Close()

	if err := containerLogger.Initialize(); err != nil {
		return 1, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	info, err := containerLogger.Prepare(ctx, executor, sandbox)
	stop()
	if err != nil {
		return 1, fmt.Errorf("preparing capture: %w", err)
	}

	return runCaptured(parsed.command, sandbox, info, logger)
}

// runCaptured runs command with stdout and stderr connected to the
// companions. The parent's copies of the descriptors are closed once the
// child holds them, so the companions exit when the child does.
func runCaptured(command []string, directory string, info *journald.SubprocessInfo, logger *slog.Logger) (int, error) {
	child := exec.Command(command[0], command[1:]...)
	child.Dir = directory
	child.Stdin = os.Stdin
	child.Stdout = info.Out
	child.Stderr = info.Err

	startErr := child.Start()
	if err := info.Close(); err != nil {
		logger.Warn("closing capture descriptors", "error", err)
	}
	if startErr != nil {
		return 126, fmt.Errorf("starting %s: %w", command[0], startErr)
	}
	logger.Info("command started", "pid", child.Process.Pid, "command", command)

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go forwardSignals(signals, child.Process)
	defer func() {
		signal.Stop(signals)
		close(signals)
	}()

	if err := child.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitCode(exitErr), nil
		}
		return 1, fmt.Errorf("waiting for %s: %w", command[0], err)
	}
	return 0, nil
}

func forwardSignals(signals <-chan os.Signal, child *os.Process) {
	for received := range signals {
		if sig, ok := received.(syscall.Signal); ok {
			// The child may already have exited.
			_ = child.Signal(sig)
		}
	}
}

// exitCode follows the shell convention of 128+N for a child killed by
// signal N.
func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}
