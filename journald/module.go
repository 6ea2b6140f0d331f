// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journald

import (
	"log/slog"
)

// Parameter is one key/value pair of the host's module configuration.
type Parameter struct {
	Key   string
	Value string
}

// ModuleInfo is the metadata the host checks when loading the module.
type ModuleInfo struct {
	Kind        string
	Name        string
	Author      string
	Contact     string
	Description string
}

// Module describes the journald container logger.
var Module = ModuleInfo{
	Kind:        "ContainerLogger",
	Name:        "com_mesosphere_mesos_JournaldLogger",
	Author:      "Mesosphere",
	Contact:     "help@mesosphere.io",
	Description: "Journald Container Logger module.",
}

// Create builds a running Logger from the host's parameters. It returns
// nil when the parameters are invalid; the error is logged. Later
// duplicates of a key override earlier ones.
func Create(parameters []Parameter, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", Module.Name)

	values := make(map[string]string, len(parameters))
	for _, parameter := range parameters {
		values[parameter.Key] = parameter.Value
	}

	flags, warnings, err := LoadFlags(values)
	for _, warning := range warnings {
		logger.Warn("module parameter", "key", warning.Key, "warning", warning.Message)
	}
	if err != nil {
		logger.Error("parsing module parameters", "error", err)
		return nil
	}

	l := New(Config{Flags: flags, Logger: logger})
	if err := l.Initialize(); err != nil {
		logger.Warn("companion logger binary unavailable", "error", err)
	}
	return l
}
