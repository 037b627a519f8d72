package session

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/google/uuid"
	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/limits"
)

const h2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// h2StreamState mirrors the subset of RFC 7540 §5.1 states this server
// cares about, adapted from the teacher's StreamManager (pkg/http2/stream.go)
// which tracked client-side (request-initiating) streams; here the server
// is the peer that *receives* HEADERS on client-opened odd stream ids.
type h2StreamState int

const (
	h2Idle h2StreamState = iota
	h2Open
	h2HalfClosedRemote
	h2Closed
)

type h2Stream struct {
	id        uint32
	state     h2StreamState
	req       *corpus.HttpMessage
	body      bytes.Buffer
	headerBuf bytes.Buffer // accumulates HEADERS+CONTINUATION fragments
	ready     bool
}

// H2Session implements Session over a single HTTP/2 connection using
// golang.org/x/net/http2's Framer for wire framing and its hpack package
// for header (de)compression, adapted from the teacher's FrameHandler/
// StreamManager (pkg/http2/frames.go, pkg/http2/stream.go) turned from a
// client dialing out into a server accepting client-opened streams.
type H2Session struct {
	conn    net.Conn
	framer  *http2.Framer
	hpackD  *hpack.Decoder
	connID  string

	mu      sync.Mutex
	streams map[uint32]*h2Stream
	readyQ  []uint32
	closed  bool
}

var _ Session = (*H2Session)(nil)

// NewH2Session wraps conn, which may be a raw TCP connection (H2C is not
// reachable from this server's listeners but the type does not require
// TLS) or the result of an ALPN-negotiated TLS handshake.
func NewH2Session(conn net.Conn) *H2Session {
	s := &H2Session{
		conn:    conn,
		framer:  http2.NewFramer(conn, conn),
		streams: make(map[uint32]*h2Stream),
		connID:  uuid.NewString(),
	}
	s.hpackD = hpack.NewDecoder(limits.DefaultHpackTableSize, nil)
	return s
}

func (s *H2Session) ConnID() string            { return s.connID }
func (s *H2Session) Protocol() corpus.Protocol { return corpus.ProtocolH2 }

// Accept reads the connection preface and exchanges an initial empty
// SETTINGS frame / ACK per RFC 7540 §3.5 and §6.5.
func (s *H2Session) Accept() error {
	preface := make([]byte, len(h2Preface))
	if _, err := io.ReadFull(s.conn, preface); err != nil {
		return errx.Protocol("h2-preface", s.connID, 0, "reading connection preface", err)
	}
	if string(preface) != h2Preface {
		return errx.Protocol("h2-preface", s.connID, 0, "invalid connection preface", nil)
	}
	if err := s.framer.WriteSettings(); err != nil {
		return errx.Protocol("h2-settings", s.connID, 0, "writing initial settings", err)
	}
	return nil
}

// PollForHeaders drives the frame-reading loop until a stream's request
// headers are fully assembled (END_HEADERS seen) or timeout elapses.
func (s *H2Session) PollForHeaders(timeout time.Duration) (PollOutcome, error) {
	s.mu.Lock()
	if len(s.readyQ) > 0 {
		s.mu.Unlock()
		return PollReady, nil
	}
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return PollError, errx.Transport("set-read-deadline", s.connID, err)
	}

	for {
		frame, err := s.framer.ReadFrame()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return PollTimeout, nil
			}
			if err == io.EOF {
				return PollPeerClosed, nil
			}
			return PollError, errx.Transport("read-frame", s.connID, err)
		}
		if err := s.handleFrame(frame); err != nil {
			return PollError, err
		}
		s.mu.Lock()
		ready := len(s.readyQ) > 0
		s.mu.Unlock()
		if ready {
			return PollReady, nil
		}
	}
}

func (s *H2Session) handleFrame(frame http2.Frame) error {
	switch f := frame.(type) {
	case *http2.SettingsFrame:
		if !f.IsAck() {
			return s.framer.WriteSettingsAck()
		}
		return nil
	case *http2.PingFrame:
		if !f.IsAck() {
			return s.framer.WritePing(true, f.Data)
		}
		return nil
	case *http2.WindowUpdateFrame:
		return nil
	case *http2.HeadersFrame:
		return s.onHeaders(f)
	case *http2.ContinuationFrame:
		return s.onContinuation(f.StreamID, f.HeaderBlockFragment(), f.HeadersEnded())
	case *http2.DataFrame:
		return s.onData(f)
	case *http2.RSTStreamFrame:
		s.mu.Lock()
		delete(s.streams, f.StreamID)
		s.mu.Unlock()
		return nil
	default:
		return nil
	}
}

func (s *H2Session) streamFor(id uint32) *h2Stream {
	st, ok := s.streams[id]
	if !ok {
		if len(s.streams) >= limits.MaxTotalStreams {
			s.evictClosedLocked()
		}
		st = &h2Stream{id: id, state: h2Open, req: &corpus.HttpMessage{IsRequest: true, Protocol: corpus.ProtocolH2, StreamID: int64(id)}}
		s.streams[id] = st
	}
	return st
}

// evictClosedLocked drops every stream in the h2Closed state to bound
// connection-lifetime memory; streams whose response was written are
// already removed from the map by Write. Must be called with s.mu held.
func (s *H2Session) evictClosedLocked() {
	for id, st := range s.streams {
		if st.state == h2Closed {
			delete(s.streams, id)
		}
	}
}

func (s *H2Session) onHeaders(f *http2.HeadersFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streamFor(f.StreamID)
	st.headerBuf.Write(f.HeaderBlockFragment())
	if f.StreamEnded() {
		st.state = h2HalfClosedRemote
	}
	if f.HeadersEnded() {
		return s.finishHeaders(st)
	}
	return nil
}

func (s *H2Session) onContinuation(streamID uint32, fragment []byte, ended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streamFor(streamID)
	st.headerBuf.Write(fragment)
	if ended {
		return s.finishHeaders(st)
	}
	return nil
}

// finishHeaders decodes the accumulated HPACK block and populates st.req.
// Must be called with s.mu held.
func (s *H2Session) finishHeaders(st *h2Stream) error {
	fields, err := s.hpackD.DecodeFull(st.headerBuf.Bytes())
	if err != nil {
		return errx.Protocol("h2-hpack-decode", s.connID, int64(st.id), "decoding header block", err)
	}
	for _, f := range fields {
		switch f.Name {
		case ":method":
			st.req.Method = f.Value
		case ":path":
			st.req.Path = f.Value
		case ":scheme":
			st.req.Scheme = f.Value
		case ":authority":
			st.req.Authority = f.Value
		default:
			st.req.Fields = append(st.req.Fields, corpus.Field{Name: f.Name, Value: f.Value})
		}
	}
	st.req.HTTPVersion = "2"
	if cl, ok := st.req.FindField("content-length"); ok {
		if n, err := strconv.ParseInt(cl.Value, 10, 64); err == nil {
			st.req.ContentSize = n
			st.req.ContentLengthP = true
		}
	}
	if st.state == h2HalfClosedRemote {
		st.ready = true
		s.readyQ = append(s.readyQ, st.id)
	}
	return nil
}

func (s *H2Session) onData(f *http2.DataFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streamFor(f.StreamID)
	st.body.Write(f.Data())
	if f.StreamEnded() {
		st.state = h2HalfClosedRemote
		if !st.ready {
			st.ready = true
			s.readyQ = append(s.readyQ, st.id)
		}
	}
	return nil
}

// ReadAndParseRequest pops the next stream whose headers (and, if present,
// body) have fully arrived.
func (s *H2Session) ReadAndParseRequest() (*corpus.HttpMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readyQ) == 0 {
		return nil, nil
	}
	id := s.readyQ[0]
	s.readyQ = s.readyQ[1:]
	st, ok := s.streams[id]
	if !ok {
		return nil, nil
	}
	req := st.req.Clone()
	req.ContentLiteral = append([]byte(nil), st.body.Bytes()...)
	req.ContentSize = int64(len(req.ContentLiteral))
	return &req, nil
}

// DrainBody is a no-op for H2: body bytes arrive via DATA frames and are
// already attached by ReadAndParseRequest before the stream is handed to
// the connection handler.
func (s *H2Session) DrainBody(expectedSize int64, alreadyRead []byte, rule *corpus.ContentRule) (int64, error) {
	return int64(len(alreadyRead)), nil
}

// Write encodes resp's pseudo-headers and fields via HPACK and emits a
// HEADERS frame followed by an optional DATA frame.
func (s *H2Session) Write(resp *corpus.HttpMessage) (int, error) {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)

	enc.WriteField(hpack.HeaderField{Name: ":status", Value: strconv.Itoa(resp.Status)})
	for _, f := range resp.Fields {
		if strings.EqualFold(f.Name, methodHintField) {
			continue
		}
		enc.WriteField(hpack.HeaderField{Name: strings.ToLower(f.Name), Value: f.Value})
	}

	body := resp.Body()
	method, _ := resp.FindField(methodHintField)
	if SuppressesBody(method.Value) {
		body = nil
	}
	endStream := len(body) == 0

	streamID := uint32(resp.StreamID)
	if err := s.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: buf.Bytes(),
		EndHeaders:    true,
		EndStream:     endStream,
	}); err != nil {
		return 0, errx.Transport("h2-write-headers", s.connID, err)
	}
	if !endStream {
		if err := s.framer.WriteData(streamID, true, body); err != nil {
			return 0, errx.Transport("h2-write-data", s.connID, err)
		}
	}
	s.mu.Lock()
	delete(s.streams, streamID)
	s.mu.Unlock()
	return buf.Len() + len(body), nil
}

func (s *H2Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *H2Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
