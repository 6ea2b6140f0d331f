// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "time"

// pollInterval is how often WaitFor re-evaluates its condition.
const pollInterval = 10 * time.Millisecond

// WaitFor polls condition until it returns true or timeout elapses, in
// which case the test fails.
//
//	testutil.WaitFor(t, 5*time.Second, func() bool { return len(children(pid)) == 2 }, "children of %d", pid)
func WaitFor(t TestingT, timeout time.Duration, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met after %v: %s", timeout, formatMessage(msgAndArgs))
		}
		time.Sleep(pollInterval)
	}
}
