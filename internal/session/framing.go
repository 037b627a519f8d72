package session

import (
	"strconv"
	"strings"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

// UpdateContentLength reconciles a message's declared Content-Length with
// its method (§4.4 step 4): HEAD responses never carry a body on the wire
// regardless of declared length, so the header is preserved but the body is
// suppressed at write time. For other messages the Content-Length field is
// synchronized with the actual body size when one is known.
func UpdateContentLength(m *corpus.HttpMessage, method string) {
	if strings.EqualFold(method, "HEAD") {
		// Content-Length field (if any) stays on the wire; Body() bytes are
		// simply not written — see (*H1Session).Write / (*H2Session).Write.
		return
	}
	body := m.Body()
	if body == nil {
		return
	}
	setField(m, "Content-Length", strconv.Itoa(len(body)))
}

// UpdateTransferEncoding normalizes chunked vs Content-Length framing for H1
// messages (§4.4 step 4). A message is chunked if it declares
// Transfer-Encoding: chunked and does not also declare Content-Length.
func UpdateTransferEncoding(m *corpus.HttpMessage) {
	te, hasTE := m.FindField("Transfer-Encoding")
	_, hasCL := m.FindField("Content-Length")
	m.Chunked = hasTE && strings.Contains(strings.ToLower(te.Value), "chunked") && !hasCL
}

func setField(m *corpus.HttpMessage, name, value string) {
	for i, f := range m.Fields {
		if strings.EqualFold(f.Name, name) {
			m.Fields[i].Value = value
			return
		}
	}
	m.Fields = append(m.Fields, corpus.Field{Name: name, Value: value})
}

// SuppressesBody reports whether method requires a bodiless response
// regardless of declared Content-Length (HEAD).
func SuppressesBody(method string) bool {
	return strings.EqualFold(method, "HEAD")
}
