package session

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/limits"
	"github.com/verifier-replay/verifier-server/internal/scratch"
	"github.com/verifier-replay/verifier-server/internal/verify"
)

// H1Session implements Session for plain HTTP/1.x connections.
//
// Request-line/header parsing is adapted from the teacher's response
// parser (pkg/client/client.go readResponse/readHeaders): same bufio.Reader
// + textproto.CanonicalMIMEHeaderKey idiom, turned around to parse a
// request instead of a response.
type H1Session struct {
	conn   net.Conn
	reader *bufio.Reader
	closed bool
	connID string
}

var _ Session = (*H1Session)(nil)

// NewH1Session wraps an accepted connection. The TLS handshake, if any, is
// assumed already complete (see H1TLSSession).
func NewH1Session(conn net.Conn) *H1Session {
	return &H1Session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		connID: uuid.NewString(),
	}
}

func (s *H1Session) ConnID() string           { return s.connID }
func (s *H1Session) Protocol() corpus.Protocol { return corpus.ProtocolH1 }

func (s *H1Session) Accept() error { return nil }

func (s *H1Session) PollForHeaders(timeout time.Duration) (PollOutcome, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return PollError, errx.Transport("set-read-deadline", s.connID, err)
	}
	// Peek to discover readability without consuming, distinguishing a
	// timeout from a clean peer close.
	_, err := s.reader.Peek(1)
	if err == nil {
		return PollReady, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return PollTimeout, nil
	}
	if err == io.EOF {
		return PollPeerClosed, nil
	}
	return PollError, errx.Transport("poll", s.connID, err)
}

func (s *H1Session) ReadAndParseRequest() (*corpus.HttpMessage, error) {
	requestLine, err := s.readLine()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errx.Protocol("read-request-line", s.connID, 0, "reading request line", err)
	}
	if requestLine == "" {
		return nil, nil
	}

	parts := strings.SplitN(requestLine, " ", 3)
	if len(parts) != 3 {
		return nil, errx.Protocol("parse-request-line", s.connID, 0, fmt.Sprintf("malformed request line %q", requestLine), nil)
	}

	msg := &corpus.HttpMessage{
		IsRequest:   true,
		Method:      parts[0],
		Path:        parts[1],
		HTTPVersion: strings.TrimPrefix(parts[2], "HTTP/"),
		Protocol:    corpus.ProtocolH1,
	}

	if err := s.readHeaders(msg); err != nil {
		return nil, err
	}

	if expect, ok := msg.FindField("Expect"); ok && strings.EqualFold(expect.Value, "100-continue") {
		msg.SendContinue = true
	}
	if cl, ok := msg.FindField("Content-Length"); ok {
		if n, err := strconv.ParseInt(cl.Value, 10, 64); err == nil {
			msg.ContentSize = n
			msg.ContentLengthP = true
		}
	}
	if te, ok := msg.FindField("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te.Value), "chunked") {
		msg.Chunked = true
	}
	if auth, ok := msg.FindField("Host"); ok {
		msg.Authority = auth.Value
	}

	return msg, nil
}

func (s *H1Session) readLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *H1Session) readHeaders(msg *corpus.HttpMessage) error {
	total := 0
	var lastName string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return errx.Protocol("read-headers", s.connID, 0, "reading request headers", err)
		}
		total += len(line)
		if total > limits.MaxHeaderBytes {
			return errx.Protocol("read-headers", s.connID, 0, "request headers exceed maximum size", nil)
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if (strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t")) && lastName != "" {
			// header continuation (RFC 7230 3.2.4)
			for i := range msg.Fields {
				if msg.Fields[i].Name == lastName {
					msg.Fields[i].Value += " " + strings.TrimSpace(trimmed)
				}
			}
			continue
		}
		parts := strings.SplitN(trimmed, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		msg.Fields = append(msg.Fields, corpus.Field{Name: name, Value: value})
		lastName = name
	}
	return nil
}

// DrainBody reads expectedSize bytes (beyond alreadyRead, which H1 never
// produces ahead of headers in this implementation so is always empty)
// into a spill-to-disk scratch buffer and checks rule against the drained
// content (§4.4 step 6). Large declared bodies never force the whole
// payload into memory at once.
func (s *H1Session) DrainBody(expectedSize int64, alreadyRead []byte, rule *corpus.ContentRule) (int64, error) {
	if expectedSize <= 0 {
		return 0, nil
	}

	buf := scratch.New(scratch.DefaultMemoryLimit)
	defer buf.Close()

	if len(alreadyRead) > 0 {
		if _, err := buf.Write(alreadyRead); err != nil {
			return 0, err
		}
	}

	remaining := expectedSize - int64(len(alreadyRead))
	if remaining > 0 {
		n, err := io.CopyN(buf, s.reader, remaining)
		if err != nil {
			return int64(len(alreadyRead)) + n, errx.Transport("drain-body", s.connID, err)
		}
	}

	if rule != nil {
		r, err := buf.Reader()
		if err != nil {
			return buf.Size(), err
		}
		defer r.Close()
		body, err := io.ReadAll(r)
		if err != nil {
			return buf.Size(), errx.Transport("drain-body-verify", s.connID, err)
		}
		if !verify.VerifyContent(body, rule) {
			return buf.Size(), errx.Verification(s.connID, "body", "request body does not satisfy content rule")
		}
	}

	return buf.Size(), nil
}

// Write emits resp as an H1 status line, headers, and (unless suppressed)
// body.
func (s *H1Session) Write(resp *corpus.HttpMessage) (int, error) {
	var b strings.Builder
	reason := resp.Reason
	if reason == "" {
		reason = statusText(resp.Status)
	}
	ver := resp.HTTPVersion
	if ver == "" {
		ver = "1.1"
	}
	fmt.Fprintf(&b, "HTTP/%s %d %s\r\n", ver, resp.Status, reason)
	for _, f := range resp.Fields {
		if strings.EqualFold(f.Name, methodHintField) {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", f.Name, f.Value)
	}
	b.WriteString("\r\n")

	body := resp.Body()
	if SuppressesBody(currentRequestMethod(resp)) {
		body = nil
	}

	n, err := io.WriteString(s.conn, b.String())
	if err != nil {
		return n, errx.Transport("write-response", s.connID, err)
	}
	if len(body) > 0 {
		bn, err := s.conn.Write(body)
		n += bn
		if err != nil {
			return n, errx.Transport("write-response-body", s.connID, err)
		}
	}
	return n, nil
}

// currentRequestMethod recovers the method used to decide body suppression.
// The connection handler stamps it onto resp via the sentinel pseudo-field
// below before calling Write (see internal/conn).
func currentRequestMethod(resp *corpus.HttpMessage) string {
	if f, ok := resp.FindField(methodHintField); ok {
		return f.Value
	}
	return ""
}

// methodHintField is a private pseudo-header the connection handler uses to
// tell Write which request method produced this response, so HEAD
// suppression (§4.4) can be applied uniformly across protocol families
// without widening the Session interface.
const methodHintField = "X-Verifier-Request-Method"

func statusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return ""
	}
}

func (s *H1Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *H1Session) IsClosed() bool { return s.closed }
