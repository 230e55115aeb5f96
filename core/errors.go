// Copyright 2026 repostats contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// LogErrorKind enumerates the Message Log error taxonomy (see spec §7).
type LogErrorKind int

const (
	// ErrConsumerNotFound is returned when an operation references a
	// consumer id the log does not know about.
	ErrConsumerNotFound LogErrorKind = iota
	// ErrProducerNotFound is returned when an operation references a
	// producer id the log does not know about.
	ErrProducerNotFound
	// ErrSequenceOutOfBounds is returned by read_one/read_batch when a
	// consumer's position has fallen below base_sequence (GC'd past).
	ErrSequenceOutOfBounds
	// ErrInvalidConfiguration is returned for nonsensical configuration,
	// e.g. an empty producer id.
	ErrInvalidConfiguration
	// ErrOperationFailed is a catch-all for log operations that cannot
	// otherwise be classified.
	ErrOperationFailed
)

// LogError is the error type returned by every MessageLog operation.
type LogError struct {
	Kind    LogErrorKind
	Message string
}

func (e *LogError) Error() string { return e.Message }

func newLogError(kind LogErrorKind, format string, args ...interface{}) *LogError {
	return &LogError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsSequenceOutOfBounds reports whether err is a LogError of kind
// ErrSequenceOutOfBounds.
func IsSequenceOutOfBounds(err error) bool {
	logErr, ok := err.(*LogError)
	return ok && logErr.Kind == ErrSequenceOutOfBounds
}

// EventBusErrorKind enumerates the Event Bus error taxonomy.
type EventBusErrorKind int

const (
	// ErrSubscriberNotFound is returned when an operation references an
	// unknown subscriber id.
	ErrSubscriberNotFound EventBusErrorKind = iota
	// ErrAlreadyExists is returned by Subscribe on a duplicate id.
	ErrAlreadyExists
	// ErrChannelClosed is returned when delivery targets a subscriber whose
	// receiver endpoint has already been dropped.
	ErrChannelClosed
	// ErrPublishFailed wraps the set of subscriber ids that failed delivery
	// during a single Publish call. Publish still succeeds overall as long
	// as at least one subscriber received the event, or there were none.
	ErrPublishFailed
	// ErrFatal marks a bus-level condition callers must not try to
	// auto-recover from.
	ErrFatal
	// ErrOutOfMemory signals aggregate queued events across all subscribers
	// exceeded the hard cap (see EventBus auto-management policy).
	ErrOutOfMemory
	// ErrSystemOverload signals more subscribers are active than the bus
	// considers healthy.
	ErrSystemOverload
)

// EventBusError is the error type returned by EventBus operations.
type EventBusError struct {
	Kind       EventBusErrorKind
	Message    string
	FailedIDs  []string
	QueueSizes map[string]int
	Total      int
}

func (e *EventBusError) Error() string {
	switch e.Kind {
	case ErrPublishFailed:
		return fmt.Sprintf("publish failed for subscribers: %s", strings.Join(e.FailedIDs, ", "))
	case ErrOutOfMemory:
		return fmt.Sprintf("event bus out of memory: %d events queued across all subscribers", e.Total)
	case ErrSystemOverload:
		return fmt.Sprintf("event bus overloaded: %s", e.Message)
	default:
		return e.Message
	}
}

func newEventBusError(kind EventBusErrorKind, format string, args ...interface{}) *EventBusError {
	return &EventBusError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// PluginErrorKind enumerates the Plugin Engine error taxonomy.
type PluginErrorKind int

const (
	// ErrPluginNotFound is returned when a command segment matches no
	// known plugin function.
	ErrPluginNotFound PluginErrorKind = iota
	// ErrAPIVersionMismatch is returned when an external plugin's
	// plugin_api_version() does not equal BASE_API_VERSION.
	ErrAPIVersionMismatch
	// ErrDiscoveryFailed is returned for manifest/library loading failures.
	ErrDiscoveryFailed
	// ErrInitializationFailed is returned when initialize() or
	// parse_arguments() fails for a plugin being activated.
	ErrInitializationFailed
	// ErrExecutionFailed wraps a failure from a specific plugin operation.
	ErrExecutionFailed
	// ErrGeneric is a free-form plugin error.
	ErrGeneric
)

// PluginError is the error type returned by plugin engine operations.
type PluginError struct {
	Kind    PluginErrorKind
	Plugin  string
	Op      string
	Message string
	Cause   error
}

func (e *PluginError) Error() string {
	switch e.Kind {
	case ErrExecutionFailed:
		return fmt.Sprintf("plugin %s: %s failed: %s", e.Plugin, e.Op, e.Cause)
	default:
		return e.Message
	}
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *PluginError) Unwrap() error { return e.Cause }

func newPluginError(kind PluginErrorKind, format string, args ...interface{}) *PluginError {
	return &PluginError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newExecutionError(plugin, op string, cause error) *PluginError {
	return &PluginError{
		Kind:   ErrExecutionFailed,
		Plugin: plugin,
		Op:     op,
		Cause:  errors.Wrapf(cause, "%s.%s", plugin, op),
	}
}

// ScannerErrorKind enumerates the Streaming Scanner error taxonomy.
type ScannerErrorKind int

const (
	// ErrRepository covers failures reading the underlying repository.
	ErrRepository ScannerErrorKind = iota
	// ErrIO covers filesystem/transport failures unrelated to repository
	// semantics.
	ErrIO
	// ErrFilterInvalid covers a malformed or contradictory requirements set.
	ErrFilterInvalid
	// ErrCancelled marks a scan that aborted because the sink returned an
	// error (see spec §4.4 invariant 2).
	ErrCancelled
)

// ScannerError is the error type returned by Scanner.Run.
type ScannerError struct {
	Kind    ScannerErrorKind
	Message string
	Cause   error
}

func (e *ScannerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ScannerError) Unwrap() error { return e.Cause }

func newScannerError(kind ScannerErrorKind, cause error, format string, args ...interface{}) *ScannerError {
	return &ScannerError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
