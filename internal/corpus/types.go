// Package corpus defines the declarative transaction model loaded from the
// replay corpus (out of scope per the specification: the core only consumes
// a stream of parsed Transaction values through the Loader interface below)
// and provides one concrete yaml.v3-backed Loader implementation.
package corpus

import "time"

// Protocol tags the wire protocol family a message belongs to.
type Protocol int

const (
	// ProtocolUnspecified means the session-level default applies.
	ProtocolUnspecified Protocol = iota
	ProtocolH1
	ProtocolH2
	ProtocolH3
)

func (p Protocol) String() string {
	switch p {
	case ProtocolH1:
		return "1"
	case ProtocolH2:
		return "2"
	case ProtocolH3:
		return "3"
	default:
		return "unspecified"
	}
}

// MatchMode is how a FieldRule compares against the actual header value.
type MatchMode int

const (
	MatchEquality MatchMode = iota
	MatchContains
	MatchPrefix
	MatchSuffix
	MatchRegex
	MatchAbsence
	MatchPresenceAny
)

// FieldRule describes the expectation for a single header field.
type FieldRule struct {
	Name     string
	Value    string // unused for MatchAbsence / MatchPresenceAny
	Mode     MatchMode
	Explicit bool // true if the corpus specified a rule; false if strict-mode promoted one
}

// Field is one observed or recorded header field, in wire order.
type Field struct {
	Name  string
	Value string
}

// ContentRule verifies the body bytes of a request (the "content_rule" in
// the original transaction model), independent of header FieldRules.
type ContentRule struct {
	Mode  MatchMode
	Value string
}

// HttpMessage is a request or response template: the parsed start-line, an
// ordered field list (each optionally carrying a FieldRule), and content.
type HttpMessage struct {
	IsRequest bool

	// Request start-line.
	Method    string
	Scheme    string
	Authority string
	Path      string

	// Response start-line.
	Status int
	Reason string

	HTTPVersion string
	Protocol    Protocol
	StreamID    int64

	Fields []Field
	Rules  map[string]*FieldRule // keyed by lower-cased field name

	// ContentSize is the declared/expected body length. ContentLiteral holds
	// literal body bytes from the corpus; when nil and ContentSize > 0 the
	// body is synthesized by the catalog's Finalize step.
	ContentSize     int64
	ContentLiteral  []byte
	ContentSynth    []byte // set by catalog.Finalize: aliases a prefix of the shared buffer
	ContentRule     *ContentRule
	Chunked         bool
	ContentLengthP  bool // true if the message explicitly declared Content-Length
	SendContinue    bool // true if the request carries Expect: 100-continue
}

// Body returns the bytes to emit/verify for this message: literal content if
// present, else the synthesized alias, else nil.
func (m *HttpMessage) Body() []byte {
	if m.ContentLiteral != nil {
		return m.ContentLiteral
	}
	return m.ContentSynth
}

// Clone returns a shallow value-copy suitable for per-connection mutation
// (stamping protocol tag/stream id onto a response template without
// mutating the catalog's shared copy).
func (m HttpMessage) Clone() HttpMessage {
	fields := make([]Field, len(m.Fields))
	copy(fields, m.Fields)
	m.Fields = fields
	return m
}

// FindField returns the first field with the given case-insensitive name.
func (m *HttpMessage) FindField(name string) (Field, bool) {
	for _, f := range m.Fields {
		if equalFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Transaction is a single recorded request/response pair with its
// verification rule set (§3).
type Transaction struct {
	Key      string
	Request  HttpMessage // the proxy-request expectation (what we verify against)
	Response HttpMessage // the server-response template (what we emit)
	Protocol Protocol
	Delay    time.Duration

	// File and Line identify the corpus source node this transaction was
	// loaded from, for load-time diagnostics raised after insertion (§7:
	// "rich diagnostics carrying file and node position").
	File string
	Line int
}

// HandshakeBehavior is the per-SNI TLS posture (§3, §4.2).
type HandshakeBehavior struct {
	// VerifyMode: 0 = none, >0 = peer verification required. Mirrors the
	// original's integer verify_mode (an OpenSSL SSL_VERIFY_* style value).
	VerifyMode int
	ALPN       []string
}

// Equal reports whether two HandshakeBehaviors describe the same posture.
func (h HandshakeBehavior) Equal(o HandshakeBehavior) bool {
	if h.VerifyMode != o.VerifyMode || len(h.ALPN) != len(o.ALPN) {
		return false
	}
	for i := range h.ALPN {
		if h.ALPN[i] != o.ALPN[i] {
			return false
		}
	}
	return true
}
