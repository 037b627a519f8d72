// Package limits centralizes the magic numbers used across the protocol
// and pool packages, adapted from the teacher's pkg/constants package
// (trimmed to the values this server's components actually reference).
package limits

import "time"

const (
	// MaxHeaderBytes bounds a single H1 request's header block (§4.3).
	MaxHeaderBytes = 64 * 1024

	// DefaultBodyMemLimit is the in-memory threshold before a drained
	// request body spills to a temp file (internal/scratch).
	DefaultBodyMemLimit = 4 * 1024 * 1024

	// DefaultHpackTableSize is the HPACK dynamic table size this server
	// advertises and decodes with (RFC 7541 §4.2).
	DefaultHpackTableSize = 4096

	// MaxTotalStreams is the number of HTTP/2 streams tracked per
	// connection at which entries in the closed state are evicted.
	MaxTotalStreams = 10000
)

// AcceptPollInterval bounds how long an Acceptor blocks in Accept before
// re-checking the shutdown signal (§5).
const AcceptPollInterval = 250 * time.Millisecond

// PollTimeout bounds how long a Session.PollForHeaders call blocks before
// the connection handler re-checks shutdown (§5).
const PollTimeout = 250 * time.Millisecond
