// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/spf13/pflag"

	"github.com/asekretenko/dcos-mesos-modules/lib/companion"
	"github.com/asekretenko/dcos-mesos-modules/lib/labels"
	"github.com/asekretenko/dcos-mesos-modules/lib/process"
	"github.com/asekretenko/dcos-mesos-modules/lib/version"
)

// defaultMaxEntryBytes bounds one journal entry. journald itself
// truncates very large fields; splitting keeps the whole line.
const defaultMaxEntryBytes = 64 * 1024

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", companion.DefaultName)

	options, err := parseFlags(os.Args[1:])
	if err != nil {
		process.Fatal(companion.DefaultName, err)
	}
	if options.showVersion {
		fmt.Println(version.Info())
		return
	}

	var sink sender = journalSender{}
	if !journal.Enabled() {
		logger.Warn("journal socket unavailable, writing entries to stderr")
		sink = writerSender{writer: os.Stderr}
	}

	if err := forward(os.Stdin, sink, options.fields, options.maxEntryBytes); err != nil {
		logger.Error("forwarding stream", "error", err)
		os.Exit(1)
	}
}

type options struct {
	fields        map[string]string
	maxEntryBytes int
	showVersion   bool
}

func parseFlags(args []string) (options, error) {
	var (
		serializedLabels string
		maxEntryBytes    int
		showVersion      bool
	)
	flagSet := pflag.NewFlagSet(companion.DefaultName, pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&serializedLabels, companion.LabelsFlag, "", "JSON-encoded labels attached to every entry")
	flagSet.IntVar(&maxEntryBytes, "max-entry-bytes", defaultMaxEntryBytes, "longest message written as a single entry")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if showVersion {
		return options{showVersion: true}, nil
	}
	if flagSet.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %q", flagSet.Args())
	}
	if !flagSet.Changed(companion.LabelsFlag) {
		return options{}, fmt.Errorf("--%s is required", companion.LabelsFlag)
	}
	if maxEntryBytes <= 0 {
		return options{}, fmt.Errorf("--max-entry-bytes must be positive, got %d", maxEntryBytes)
	}

	decoded, err := labels.Decode(serializedLabels)
	if err != nil {
		return options{}, fmt.Errorf("--%s: %w", companion.LabelsFlag, err)
	}
	return options{fields: decoded.JournalFields(), maxEntryBytes: maxEntryBytes}, nil
}

// sender writes one journal entry.
type sender interface {
	Send(message string, priority journal.Priority, fields map[string]string) error
}

type journalSender struct{}

func (journalSender) Send(message string, priority journal.Priority, fields map[string]string) error {
	return journal.Send(message, priority, fields)
}

// writerSender is the fallback when journald is not running.
type writerSender struct {
	writer io.Writer
}

func (s writerSender) Send(message string, _ journal.Priority, _ map[string]string) error {
	_, err := fmt.Fprintln(s.writer, message)
	return err
}

// forward reads input line by line until EOF and sends each line, without
// its newline, as an entry. A trailing partial line is sent too. Lines
// longer than maxEntryBytes are split across entries at a UTF-8
// character boundary. Send failures are fatal: a companion that cannot
// reach the journal should exit so the container sees EPIPE rather than
// silently losing output.
func forward(input io.Reader, sink sender, fields map[string]string, maxEntryBytes int) error {
	reader := bufio.NewReaderSize(input, maxEntryBytes)

	send := func(message []byte) error {
		if err := sink.Send(string(message), journal.PriInfo, fields); err != nil {
			return fmt.Errorf("sending entry: %w", err)
		}
		return nil
	}
	// sendLine sends a complete line, splitting it while it is too long.
	sendLine := func(line []byte) error {
		for len(line) > maxEntryBytes {
			cut := splitPoint(line, maxEntryBytes)
			if err := send(line[:cut]); err != nil {
				return err
			}
			line = line[cut:]
		}
		return send(line)
	}

	// pending holds the unsent part of the current line, at most
	// 2*maxEntryBytes.
	var pending []byte
	for {
		chunk, err := reader.ReadSlice('\n')
		pending = append(pending, chunk...)

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			for len(pending) > maxEntryBytes {
				cut := splitPoint(pending, maxEntryBytes)
				if err := send(pending[:cut]); err != nil {
					return err
				}
				pending = append(pending[:0], pending[cut:]...)
			}
		case err == nil:
			if err := sendLine(pending[:len(pending)-1]); err != nil {
				return err
			}
			pending = pending[:0]
		case errors.Is(err, io.EOF):
			if len(pending) > 0 {
				return sendLine(pending)
			}
			return nil
		default:
			return fmt.Errorf("reading stream: %w", err)
		}
	}
}

// splitPoint returns the largest n <= limit such that data[:n] does not
// end inside a multi-byte UTF-8 sequence. Invalid input, or a sequence
// that fills the whole window, is cut at limit.
func splitPoint(data []byte, limit int) int {
	if limit > len(data) {
		limit = len(data)
	}
	for back := 1; back < utf8.UTFMax && back <= limit; back++ {
		start := limit - back
		if !utf8.RuneStart(data[start]) {
			continue
		}
		if !utf8.FullRune(data[start:limit]) && start > 0 {
			return start
		}
		return limit
	}
	return limit
}
