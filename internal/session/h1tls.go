package session

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/tlsregistry"
)

// H1TLSSession wraps a *tls.Conn accepted on a TLS-terminating listener.
// Accept performs the handshake; the SNI seen during the handshake is
// looked up in the registry purely for validation/logging (the listener's
// tls.Config.GetConfigForClient already consulted the registry to choose
// client-auth policy before the handshake completed). Once the handshake
// finishes, request/response framing is identical to plain H1, or is
// handed off to an H2Session when ALPN negotiated h2.
type H1TLSSession struct {
	*H1Session
	tlsConn  *tls.Conn
	registry *tlsregistry.Registry
}

var _ Session = (*H1TLSSession)(nil)

// NewH1TLSSession wraps conn, which must already be a *tls.Conn produced by
// a TLS listener (tls.NewListener / tls.Config.GetConfigForClient wires SNI
// dispatch at the net.Listener level, per §4.2).
func NewH1TLSSession(conn *tls.Conn, registry *tlsregistry.Registry) *H1TLSSession {
	return &H1TLSSession{
		H1Session: NewH1Session(conn),
		tlsConn:   conn,
		registry:  registry,
	}
}

// Accept drives the TLS handshake to completion and validates the
// negotiated SNI is one the registry resolved at load time. A SNI with no
// registered behavior is accepted with the listener's default policy (the
// registry only overrides behavior for SNIs it was explicitly told about).
func (s *H1TLSSession) Accept() error {
	if err := s.tlsConn.HandshakeContext(context.Background()); err != nil {
		return errx.Transport("tls-handshake", s.ConnID(), err)
	}
	state := s.tlsConn.ConnectionState()
	if state.ServerName != "" {
		s.registry.Lookup(state.ServerName) // observed for logging; absence is not an error
	}
	return nil
}

func (s *H1TLSSession) Protocol() corpus.Protocol {
	if s.tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		return corpus.ProtocolH2
	}
	return corpus.ProtocolH1
}

// NegotiatedH2 reports whether ALPN selected h2, in which case the
// Acceptor should hand the underlying connection to an H2Session instead
// of continuing to use this one.
func (s *H1TLSSession) NegotiatedH2() bool {
	return s.tlsConn.ConnectionState().NegotiatedProtocol == "h2"
}

func (s *H1TLSSession) PollForHeaders(timeout time.Duration) (PollOutcome, error) {
	return s.H1Session.PollForHeaders(timeout)
}
