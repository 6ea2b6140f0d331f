// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package labels

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Well-known label keys appended to every set.
const (
	FrameworkIDKey = "FRAMEWORK_ID"
	ExecutorIDKey  = "EXECUTOR_ID"
	ContainerIDKey = "CONTAINER_ID"
)

// Label is a single key/value tag.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Labels is an ordered label set. The single-field wrapper mirrors the
// protocol message so the JSON form is {"labels":[...]}.
type Labels struct {
	Labels []Label `json:"labels,omitempty"`
}

// Identity names a running container instance.
type Identity struct {
	FrameworkID string
	ExecutorID  string
	ContainerID string
}

// IdentityFromSandbox builds an Identity whose ContainerID is the final
// component of the container's sandbox directory. The host does not pass
// the container ID to the logger directly; the sandbox path convention
// (.../containers/<container-id>) carries it.
func IdentityFromSandbox(frameworkID, executorID, sandboxDirectory string) Identity {
	return Identity{
		FrameworkID: frameworkID,
		ExecutorID:  executorID,
		ContainerID: filepath.Base(filepath.Clean(sandboxDirectory)),
	}
}

// Assemble returns callerLabels followed by the identity labels. The
// caller's slice is copied, never aliased.
func Assemble(identity Identity, callerLabels []Label) Labels {
	assembled := make([]Label, 0, len(callerLabels)+3)
	assembled = append(assembled, callerLabels...)
	assembled = append(assembled,
		Label{Key: FrameworkIDKey, Value: identity.FrameworkID},
		Label{Key: ExecutorIDKey, Value: identity.ExecutorID},
		Label{Key: ContainerIDKey, Value: identity.ContainerID},
	)
	return Labels{Labels: assembled}
}

// Encode serializes the set for transport as a command-line argument.
func (l Labels) Encode() (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encoding labels: %w", err)
	}
	return string(data), nil
}

// Decode parses the output of Encode.
func Decode(encoded string) (Labels, error) {
	var decoded Labels
	if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
		return Labels{}, fmt.Errorf("decoding labels: %w", err)
	}
	return decoded, nil
}

// JournalFields maps the set onto journal field names. Journal field
// names are restricted to [A-Z0-9_] and may not begin with '_' (those are
// trusted fields set by journald), so keys are uppercased, other bytes
// become '_', and leading underscores are dropped. Keys that end up empty
// are skipped, and keys naming MESSAGE or PRIORITY are prefixed with
// LABEL_. A later label overwrites an earlier one with the same field
// name.
func (l Labels) JournalFields() map[string]string {
	fields := make(map[string]string, len(l.Labels))
	for _, label := range l.Labels {
		name := JournalFieldName(label.Key)
		if name == "" {
			continue
		}
		fields[name] = label.Value
	}
	return fields
}

// JournalFieldName converts a label key into a valid journal field name,
// or "" when nothing valid remains.
func JournalFieldName(key string) string {
	var builder strings.Builder
	builder.Grow(len(key))
	for _, character := range strings.ToUpper(key) {
		switch {
		case character >= 'A' && character <= 'Z', character >= '0' && character <= '9':
			builder.WriteRune(character)
		default:
			builder.WriteByte('_')
		}
	}
	name := strings.TrimLeft(builder.String(), "_")
	// journald also rejects names starting with a digit.
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "L" + name
	}
	if _, reserved := entryFields[name]; reserved {
		name = reservedPrefix + name
	}
	return name
}

// entryFields are written by the journal client for every entry. A label
// mapping onto one of them is renamed with reservedPrefix.
var entryFields = map[string]struct{}{
	"MESSAGE":  {},
	"PRIORITY": {},
}

const reservedPrefix = "LABEL_"

