// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fdpipe builds unidirectional OS pipes whose descriptor
// ownership is explicit.
//
// A [Pipe] is created with pipe(2) rather than through os/exec's
// StdinPipe so that the two ends can have different owners: the read end
// is handed to exactly one companion process (as its stdin), while the
// write end is handed back to whoever attaches it to a container's
// stdout or stderr. Both ends are marked close-on-exec before
// syscall.ForkLock is released, so no fork can observe them unmarked. The read end still reaches its intended child because the
// child receives it through the explicit dup2 onto fd 0 performed by
// os/exec, which clears the flag on the duplicate only. No other child
// spawned concurrently by the host inherits either end.
//
// Ownership is tracked on the Pipe itself: [Pipe.TakeRead] and
// [Pipe.TakeWrite] transfer an end out, and [Pipe.Close] closes whatever
// has not been transferred. This makes the idiom
//
//	pipe, err := fdpipe.New()
//	if err != nil { ... }
//	defer pipe.Close()
//
// safe on every exit path.
//
// Failures are reported through the lib/fault taxonomy: pipe(2) errors
// are resource errors, fcntl errors are configuration errors. On a
// configuration error both ends are closed before returning.
package fdpipe
