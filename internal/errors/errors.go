// Package errors defines structured error types shared across the Playdar
// daemon: network failures, malformed input, and configuration problems.
//
// Each type carries operation context, an actionable message, and (where
// applicable) the underlying cause via Unwrap, so callers can use
// errors.Is/errors.As instead of string matching.
//
// Two outcomes deliberately do NOT use this package: an unknown QID and a
// duplicate QID are expected, silent conditions on the hot path (see
// internal/registry), not errors.
package errors

import "fmt"

// NetworkError represents a failure setting up or using the LAN socket: bind,
// multicast group join, or a send/receive syscall. Endpoint names the
// address or group involved, when the failure is specific to one.
type NetworkError struct {
	// Op names the socket step that failed (e.g. "bind LAN UDP socket",
	// "join multicast group").
	Op string

	// Endpoint is the address or multicast group the op was acting on,
	// empty when the failure has no single associated endpoint.
	Endpoint string

	// Err is the underlying error from the network stack.
	Err error
}

func (e *NetworkError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError represents an outbound LAN message that fails the wire
// contract before it ever reaches a socket — currently just the oversized
// payload check (spec §4.E's 1500-byte ceiling). Limit is the contract
// value the input violated, if there is a single one to report.
type ValidationError struct {
	// Input names what was rejected (e.g. "1732-byte payload").
	Input string

	// Limit is the violated bound, if safe to include.
	Limit interface{}

	// Reason describes why the input was rejected.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Limit != nil {
		return fmt.Sprintf("%s rejected: %s (limit %v)", e.Input, e.Reason, e.Limit)
	}
	return fmt.Sprintf("%s rejected: %s", e.Input, e.Reason)
}

// ProtocolError represents a malformed UDP envelope: invalid JSON, a missing
// _msgtype discriminator, a payload that fails to decode, or an outgoing
// message that fails to marshal. An unknown _msgtype is not an error, and an
// oversized outgoing payload is a ValidationError.
// Per spec, these are always dropped by the caller, never propagated past
// the LAN resolver boundary — this type exists so the drop can still be
// logged with context.
type ProtocolError struct {
	// Operation describes what parsing/send step failed.
	Operation string

	// Message describes why the envelope is invalid.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error during %s: %s (underlying: %v)", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("protocol error during %s: %s", e.Operation, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ConfigError represents a fatal startup configuration problem: a missing
// config directory or config file. Per spec §7 this is the one error class
// that is fatal rather than logged-and-dropped.
type ConfigError struct {
	// Path is the config directory or file that could not be used.
	Path string

	// Message describes the problem.
	Message string

	// Err is the underlying error, if any.
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error at %q: %s", e.Path, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }
