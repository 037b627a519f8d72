// Package session implements the Session abstraction (§4.3): a uniform,
// framed, request-at-a-time interface over four protocol families (H1,
// H1-over-TLS, H2, H3). A tagged interface with one implementation per
// family is used, per §9's note that this is equally valid to a
// tagged-variant encoding.
package session

import (
	"time"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

// PollOutcome is the result of a bounded wait for the next request (§4.3).
type PollOutcome int

const (
	PollReady PollOutcome = iota
	PollTimeout
	PollPeerClosed
	PollError
)

// Session is the per-connection protocol state machine interface every
// wire-protocol family implements.
type Session interface {
	// Accept completes any protocol-level handshake (TLS, HTTP/2 preface +
	// SETTINGS exchange, HTTP/3 QUIC handshake).
	Accept() error

	// PollForHeaders bounds the wait for the next readable request; the
	// short timeout is what gives acceptors and workers shutdown
	// responsiveness (§5).
	PollForHeaders(timeout time.Duration) (PollOutcome, error)

	// ReadAndParseRequest returns the next available request, or nil on a
	// clean peer close. Multiplexed protocols tag the returned message with
	// its stream id.
	ReadAndParseRequest() (*corpus.HttpMessage, error)

	// DrainBody reads and discards/validates an H1 request body of
	// expectedSize bytes, of which alreadyRead has already been consumed
	// into scratch. H2/H3 sessions never call this; their framing layer
	// delivers the body at the stream level.
	DrainBody(expectedSize int64, alreadyRead []byte, rule *corpus.ContentRule) (int64, error)

	// Write performs protocol-appropriate framing, computes
	// Content-Length/Transfer-Encoding per §4.4, and emits resp.
	Write(resp *corpus.HttpMessage) (int, error)

	Close() error
	IsClosed() bool

	// Protocol reports which family this session implements.
	Protocol() corpus.Protocol

	// ConnID is a stable per-connection identifier for logging/errors.
	ConnID() string
}
