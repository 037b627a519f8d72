// Package errx provides structured error types for the verifier server.
package errx

import (
	"errors"
	"fmt"
	"time"
)

// Kind represents the category of error that occurred.
type Kind string

const (
	// KindConfig represents CLI/configuration errors.
	KindConfig Kind = "config"
	// KindLoad represents corpus load-time errors (malformed node, duplicate key, ...).
	KindLoad Kind = "load"
	// KindTransport represents per-connection transport errors (poll/read/write failure).
	KindTransport Kind = "transport"
	// KindProtocol represents wire-protocol framing errors (H1/H2/H3).
	KindProtocol Kind = "protocol"
	// KindVerification represents a header verification mismatch.
	KindVerification Kind = "verification"
)

// Error is a structured error carrying enough context to diagnose load-time
// and runtime failures without string-grepping the message.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Cause     error
	Timestamp time.Time

	// Load-time context: the corpus file and YAML node position.
	File string
	Line int

	// Runtime context: the connection and, for multiplexed protocols, the stream.
	ConnID   string
	StreamID int64
}

// Error implements the error interface.
// Format: [kind] op file:line conn=.. stream=..: message: cause
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.File != "" {
		if e.Line > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.File, e.Line))
		} else {
			parts = append(parts, e.File)
		}
	}
	if e.ConnID != "" {
		parts = append(parts, fmt.Sprintf("conn=%s", e.ConnID))
	}
	if e.StreamID > 0 {
		parts = append(parts, fmt.Sprintf("stream=%d", e.StreamID))
	}

	s := joinNonEmpty(parts)
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func joinNonEmpty(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target's Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Config creates a configuration/CLI error.
func Config(op, message string, cause error) *Error {
	return &Error{Kind: KindConfig, Op: op, Message: message, Cause: cause, Timestamp: time.Now()}
}

// Load creates a corpus load-time error carrying file/line position.
func Load(file string, line int, message string, cause error) *Error {
	return &Error{Kind: KindLoad, Op: "load", Message: message, Cause: cause, File: file, Line: line, Timestamp: time.Now()}
}

// Transport creates a per-connection transport error.
func Transport(op, connID string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: "transport operation failed", Cause: cause, ConnID: connID, Timestamp: time.Now()}
}

// Protocol creates a wire-protocol framing error, optionally scoped to a stream.
func Protocol(op, connID string, streamID int64, message string, cause error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: message, Cause: cause, ConnID: connID, StreamID: streamID, Timestamp: time.Now()}
}

// Verification creates a header-verification-mismatch error.
func Verification(connID, key, message string) *Error {
	return &Error{Kind: KindVerification, Op: "verify", Message: fmt.Sprintf("key=%s: %s", key, message), ConnID: connID, Timestamp: time.Now()}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
