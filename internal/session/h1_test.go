package session

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

func pipeSession(t *testing.T) (*H1Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return NewH1Session(server), client
}

func TestH1SessionReadAndParseRequest(t *testing.T) {
	s, client := pipeSession(t)

	go func() {
		client.Write([]byte("GET /hello HTTP/1.1\r\nHost: example.com\r\nX-Custom: a\r\n\r\n"))
	}()

	msg, err := s.ReadAndParseRequest()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "GET", msg.Method)
	assert.Equal(t, "/hello", msg.Path)
	assert.Equal(t, "1.1", msg.HTTPVersion)
	assert.Equal(t, "example.com", msg.Authority)

	f, ok := msg.FindField("X-Custom")
	require.True(t, ok)
	assert.Equal(t, "a", f.Value)
}

func TestH1SessionReadAndParseRequestDetectsContinueAndContentLength(t *testing.T) {
	s, client := pipeSession(t)

	go func() {
		client.Write([]byte("POST /up HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\nExpect: 100-continue\r\n\r\n"))
	}()

	msg, err := s.ReadAndParseRequest()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.SendContinue)
	assert.Equal(t, int64(5), msg.ContentSize)
	assert.True(t, msg.ContentLengthP)
}

func TestH1SessionReadAndParseRequestHandlesHeaderContinuation(t *testing.T) {
	s, client := pipeSession(t)

	go func() {
		client.Write([]byte("GET / HTTP/1.1\r\nX-Long: part1\r\n part2\r\n\r\n"))
	}()

	msg, err := s.ReadAndParseRequest()
	require.NoError(t, err)
	f, ok := msg.FindField("X-Long")
	require.True(t, ok)
	assert.Equal(t, "part1 part2", f.Value)
}

func TestH1SessionDrainBodyRejectsMismatch(t *testing.T) {
	s, client := pipeSession(t)

	go func() {
		client.Write([]byte("nope"))
	}()

	rule := &corpus.ContentRule{Mode: corpus.MatchEquality, Value: "yes!"}
	_, err := s.DrainBody(4, nil, rule)
	assert.Error(t, err)
}

func TestH1SessionDrainBodyAcceptsMatch(t *testing.T) {
	s, client := pipeSession(t)

	go func() {
		client.Write([]byte("hi"))
	}()

	rule := &corpus.ContentRule{Mode: corpus.MatchEquality, Value: "hi"}
	n, err := s.DrainBody(2, nil, rule)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestH1SessionDrainBodyNoopWhenZero(t *testing.T) {
	s, _ := pipeSession(t)
	n, err := s.DrainBody(0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestH1SessionWriteEmitsStatusLineAndHeaders(t *testing.T) {
	s, client := pipeSession(t)
	reader := bufio.NewReader(client)

	resp := &corpus.HttpMessage{
		Status:      200,
		Reason:      "OK",
		HTTPVersion: "1.1",
		Fields:      []corpus.Field{{Name: "Content-Length", Value: "2"}},
		ContentLiteral: []byte("ok"),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := s.Write(resp)
		assert.NoError(t, err)
	}()

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", line)

	header, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Length: 2\r\n", header)

	blank, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\r\n", blank)

	body := make([]byte, 2)
	_, err = reader.Read(body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	<-done
}

func TestH1SessionWriteSuppressesBodyForHead(t *testing.T) {
	s, client := pipeSession(t)
	reader := bufio.NewReader(client)

	resp := &corpus.HttpMessage{
		Status:         200,
		HTTPVersion:    "1.1",
		Fields:         []corpus.Field{{Name: methodHintField, Value: "HEAD"}},
		ContentLiteral: []byte("should not appear"),
	}

	go s.Write(resp)

	line, err := reader.ReadString('\n') // status line
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", line)

	// methodHintField was the only field on resp, so the header block must
	// be empty: the blank line terminating it comes right after the status
	// line, never a header line carrying the hint.
	blank, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\r\n", blank)

	client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 1)
	_, err = client.Read(buf)
	assert.Error(t, err) // no body bytes ever arrive
}

func TestH1SessionWriteFiltersMethodHintFieldFromWire(t *testing.T) {
	s, client := pipeSession(t)
	reader := bufio.NewReader(client)

	resp := &corpus.HttpMessage{
		Status:      200,
		HTTPVersion: "1.1",
		Fields: []corpus.Field{
			{Name: "Content-Length", Value: "2"},
			{Name: methodHintField, Value: "GET"},
		},
		ContentLiteral: []byte("ok"),
	}

	go s.Write(resp)

	var headerLines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		headerLines = append(headerLines, line)
	}

	require.Len(t, headerLines, 1)
	assert.Equal(t, "Content-Length: 2\r\n", headerLines[0])
	for _, l := range headerLines {
		assert.NotContains(t, l, methodHintField)
	}
}

func TestH1SessionPollForHeadersTimesOut(t *testing.T) {
	s, _ := pipeSession(t)
	outcome, err := s.PollForHeaders(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, PollTimeout, outcome)
}

func TestH1SessionPollForHeadersReady(t *testing.T) {
	s, client := pipeSession(t)
	go client.Write([]byte("x"))

	outcome, err := s.PollForHeaders(time.Second)
	require.NoError(t, err)
	assert.Equal(t, PollReady, outcome)
}

func TestH1SessionCloseIsIdempotent(t *testing.T) {
	s, _ := pipeSession(t)
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())
	require.NoError(t, s.Close())
}
