// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// journald-capture runs a command with its stdout and stderr captured by
// the journald container logger, the same way the agent does for a
// container. It exercises a deployment end to end without a cluster:
//
//	journald-capture --config=/etc/mesos/journald.yaml \
//	    --executor=executor.jsonc --sandbox=/tmp/runs/c-123 -- ./workload
//
// The config file holds the module parameters:
//
//	parameters:
//	  companion_dir: /opt/mesosphere/bin
//	  libprocess_num_worker_threads: 4
//	  companion_slice: ""  # keep companions in the caller's cgroup
//
// The executor file is JSONC (JSON with comments and trailing commas):
//
//	{
//	  "framework_id": "marathon", // required
//	  "executor_id": "web.1",
//	  "labels": [{"key": "team", "value": "infra"}],
//	}
//
// --param, --framework-id, --executor-id and --label override or extend
// the files. The command's exit code becomes journald-capture's exit code.
package main
