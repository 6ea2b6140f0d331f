// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of the binaries in cmd/.
//
// Release builds set [Version] with -ldflags:
//
//	go build -ldflags "-X github.com/asekretenko/dcos-mesos-modules/lib/version.Version=1.4.0" ./cmd/...
//
// The VCS revision comes from the build info the Go toolchain embeds.
package version
