// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Fatal writes "<program>: error: err" to stderr and exits with code 1.
func Fatal(program string, err error) {
	fmt.Fprintf(os.Stderr, "%s: error: %v\n", program, err)
	os.Exit(1)
}

// Exit terminates with code after reporting err, if any. Exit codes
// propagate a supervised command's status through the caller.
func Exit(program string, code int, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", program, err)
	}
	os.Exit(code)
}
