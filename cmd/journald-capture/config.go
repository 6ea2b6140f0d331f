// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/asekretenko/dcos-mesos-modules/journald"
	"github.com/asekretenko/dcos-mesos-modules/lib/labels"
)

// moduleConfig is the YAML file of module parameters.
type moduleConfig struct {
	Parameters map[string]string `yaml:"parameters"`
}

// loadModuleConfig reads the module parameters at path. An empty path
// yields no parameters.
func loadModuleConfig(path string) (map[string]string, error) {
	parameters := make(map[string]string)
	if path == "" {
		return parameters, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config moduleConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	for key, value := range config.Parameters {
		parameters[key] = value
	}
	return parameters, nil
}

// executorFile is the JSONC executor description.
type executorFile struct {
	FrameworkID string         `json:"framework_id"`
	ExecutorID  string         `json:"executor_id"`
	Labels      []labels.Label `json:"labels"`
}

// loadExecutor reads the executor description at path. An empty path
// yields an empty description.
func loadExecutor(path string) (journald.ExecutorInfo, error) {
	if path == "" {
		return journald.ExecutorInfo{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return journald.ExecutorInfo{}, fmt.Errorf("reading executor: %w", err)
	}

	var file executorFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return journald.ExecutorInfo{}, fmt.Errorf("parsing executor %s: %w", path, err)
	}
	return journald.ExecutorInfo{
		FrameworkID: file.FrameworkID,
		ExecutorID:  file.ExecutorID,
		Labels:      file.Labels,
	}, nil
}

// splitAssignments parses KEY=VALUE arguments. The value may be empty or
// contain '='.
func splitAssignments(flag string, assignments []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(assignments))
	for _, assignment := range assignments {
		key, value, found := strings.Cut(assignment, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("--%s %q: want KEY=VALUE", flag, assignment)
		}
		pairs = append(pairs, [2]string{key, value})
	}
	return pairs, nil
}

// toParameters converts a parameter map to the module's parameter list in
// key order.
func toParameters(values map[string]string) []journald.Parameter {
	parameters := make([]journald.Parameter, 0, len(values))
	for key, value := range values {
		parameters = append(parameters, journald.Parameter{Key: key, Value: value})
	}
	sort.Slice(parameters, func(i, j int) bool { return parameters[i].Key < parameters[j].Key })
	return parameters
}
