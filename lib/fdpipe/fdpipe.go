// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fdpipe

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/asekretenko/dcos-mesos-modules/lib/fault"
)

// Pipe is a unidirectional pipe. Read and Write are nil once the
// corresponding end has been transferred or closed.
type Pipe struct {
	Read  *os.File
	Write *os.File
}

// TakeRead transfers ownership of the read end to the caller. Subsequent
// calls to Close leave it alone.
func (p *Pipe) TakeRead() *os.File {
	file := p.Read
	p.Read = nil
	return file
}

// TakeWrite transfers ownership of the write end to the caller.
func (p *Pipe) TakeWrite() *os.File {
	file := p.Write
	p.Write = nil
	return file
}

// Close closes every end still owned by the pipe. Safe to call more than
// once and on a nil receiver.
func (p *Pipe) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.Read != nil {
		errs = append(errs, p.Read.Close())
		p.Read = nil
	}
	if p.Write != nil {
		errs = append(errs, p.Write.Close())
		p.Write = nil
	}
	return errors.Join(errs...)
}

// Builder creates pipes. The zero value uses the real syscalls; tests
// replace the function fields to exercise failure paths.
type Builder struct {
	// Pipe fills fds with the read and write descriptors of a new pipe.
	Pipe func(fds []int) error

	// SetCloexec marks fd close-on-exec.
	SetCloexec func(fd int) error

	// Name labels the resulting *os.File values ("stdout", "stderr").
	// Only used for diagnostics.
	Name string
}

// New creates a pipe with the real syscalls.
func New() (*Pipe, error) {
	return Builder{}.New()
}

// New creates a pipe and marks both ends close-on-exec.
func (b Builder) New() (*Pipe, error) {
	createPipe := b.Pipe
	if createPipe == nil {
		createPipe = unix.Pipe
	}
	setCloexec := b.SetCloexec
	if setCloexec == nil {
		setCloexec = SetCloexec
	}

	// pipe(2) and the fcntl calls are separate steps, so a fork in
	// between would copy descriptors that are not yet close-on-exec.
	// os/exec takes ForkLock exclusively around fork.
	syscall.ForkLock.RLock()
	fds, err := createMarkedPipe(createPipe, setCloexec)
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, err
	}

	name := b.Name
	if name == "" {
		name = "pipe"
	}
	return &Pipe{
		Read:  os.NewFile(uintptr(fds[0]), name+"-read"),
		Write: os.NewFile(uintptr(fds[1]), name+"-write"),
	}, nil
}

// createMarkedPipe must be called with syscall.ForkLock held.
func createMarkedPipe(createPipe func([]int) error, setCloexec func(int) error) ([]int, error) {
	fds := make([]int, 2)
	if err := createPipe(fds); err != nil {
		return nil, fault.ResourceError("create pipe", err)
	}

	for _, fd := range fds {
		if err := setCloexec(fd); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fault.ConfigurationError("cloexec", fmt.Errorf("fd %d: %w", fd, err))
		}
	}
	return fds, nil
}

// SetCloexec sets FD_CLOEXEC on fd, preserving its other descriptor flags.
func SetCloexec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	return err
}

// IsCloexec reports whether fd has FD_CLOEXEC set.
func IsCloexec(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}
