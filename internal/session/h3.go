package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
)

func contextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// H3Session is the HTTP/3 session family named by the listener surface
// (§6) and wired to quic-go's connection/stream types, but left gated off
// at the accept path: opening the QUIC listener and completing the
// QUIC+TLS handshake is supported, request framing over QUIC streams is
// not. Enabling it is future work, not a behavior this server depends on.
type H3Session struct {
	conn   quic.Connection
	connID string
	gated  bool
}

var _ Session = (*H3Session)(nil)

// NewH3Session wraps an accepted QUIC connection. gated, when true,
// makes every request-handling method return a not-implemented protocol
// error instead of attempting to parse HTTP/3 framing.
func NewH3Session(conn quic.Connection, gated bool) *H3Session {
	return &H3Session{conn: conn, connID: uuid.NewString(), gated: gated}
}

func (s *H3Session) ConnID() string            { return s.connID }
func (s *H3Session) Protocol() corpus.Protocol { return corpus.ProtocolH3 }

func (s *H3Session) Accept() error {
	return nil
}

func (s *H3Session) PollForHeaders(timeout time.Duration) (PollOutcome, error) {
	if s.gated {
		return PollError, errx.Protocol("h3-poll", s.connID, 0, "http/3 request handling is not enabled", nil)
	}
	ctx, cancel := contextWithTimeout(timeout)
	defer cancel()
	str, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return PollTimeout, nil
	}
	_ = str
	return PollReady, nil
}

func (s *H3Session) ReadAndParseRequest() (*corpus.HttpMessage, error) {
	return nil, errx.Protocol("h3-read", s.connID, 0, "http/3 request parsing is not implemented", nil)
}

func (s *H3Session) DrainBody(expectedSize int64, alreadyRead []byte, rule *corpus.ContentRule) (int64, error) {
	return 0, nil
}

func (s *H3Session) Write(resp *corpus.HttpMessage) (int, error) {
	return 0, errx.Protocol("h3-write", s.connID, 0, "http/3 response framing is not implemented", nil)
}

func (s *H3Session) Close() error {
	return s.conn.CloseWithError(0, "")
}

func (s *H3Session) IsClosed() bool { return false }
