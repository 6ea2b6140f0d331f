// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Resource means the OS could not allocate a pipe or descriptor.
	Resource Kind = iota + 1

	// Configuration means descriptor flags could not be applied or
	// configuration parameters failed validation.
	Configuration

	// Spawn means the companion binary failed to launch.
	Spawn
)

func (k Kind) String() string {
	switch k {
	case Resource:
		return "resource"
	case Configuration:
		return "configuration"
	case Spawn:
		return "spawn"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrResource      = errors.New("resource error")
	ErrConfiguration = errors.New("configuration error")
	ErrSpawn         = errors.New("spawn error")
)

// Error is a failed step. Step names what was being attempted
// ("create stdout pipe", "spawn stderr logger"); Err is the cause.
//
//	var stepErr *fault.Error
//	if errors.As(err, &stepErr) {
//	    logger.Error("prepare failed", "step", stepErr.Step, "kind", stepErr.Kind)
//	}
type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Step
	}
	return e.Step + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrResource:
		return e.Kind == Resource
	case ErrConfiguration:
		return e.Kind == Configuration
	case ErrSpawn:
		return e.Kind == Spawn
	}
	return false
}

// ResourceError reports a failed allocation during step.
func ResourceError(step string, err error) error {
	return &Error{Kind: Resource, Step: step, Err: err}
}

// ConfigurationError reports a failed configuration step.
func ConfigurationError(step string, err error) error {
	return &Error{Kind: Configuration, Step: step, Err: err}
}

// SpawnError reports a failed companion launch.
func SpawnError(step string, err error) error {
	return &Error{Kind: Spawn, Step: step, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or zero
// when err carries none.
func KindOf(err error) Kind {
	var stepErr *Error
	if errors.As(err, &stepErr) {
		return stepErr.Kind
	}
	return 0
}
