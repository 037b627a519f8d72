// Package conn implements the Connection Handler (§4.4): the per-connection
// request/response loop that turns a parsed request into a catalog lookup,
// header verification, and a replayed response.
//
// Grounded on TF_Serve_Connection's request loop in
// original_source/verifier-server.cc: parse request, derive key, look up
// transaction (404 on miss), handle Expect: 100-continue, drain/verify the
// body, verify headers, apply the transaction's delay, write the response,
// loop until the peer closes or the session errors.
package conn

import (
	"time"

	"github.com/verifier-replay/verifier-server/internal/catalog"
	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/limits"
	"github.com/verifier-replay/verifier-server/internal/log"
	"github.com/verifier-replay/verifier-server/internal/session"
	"github.com/verifier-replay/verifier-server/internal/verify"
)

// methodHintField mirrors the identically named unexported constant in
// package session: the connection handler stamps the originating request
// method onto the response so Session.Write can suppress HEAD bodies
// without widening the Session interface.
const methodHintField = "X-Verifier-Request-Method"

// Handler owns the catalog/verification dependencies needed to service
// every request arriving on a Session, independent of which protocol
// family that Session implements.
type Handler struct {
	Catalog *catalog.Catalog
	Verify  *verify.Engine
	Log     log.Logger

	// KeyFormat must be the same formatter the corpus was loaded with, so
	// request-time key derivation is symmetric with load-time derivation
	// (§4.1, §6).
	KeyFormat *corpus.KeyFormatter

	// ShouldStop is polled between requests so the handler can exit
	// promptly during shutdown (§5); nil means never stop early.
	ShouldStop func() bool

	// Fail latches the process-wide exit status (§6, §7, §8). Called on a
	// catalog miss and on a verification mismatch. nil means exit status
	// tracking is disabled (e.g. in tests that don't care about it).
	Fail func(code int32)
}

// Serve drains s until the peer closes the connection, the session
// errors, or ShouldStop reports true. It always closes s before
// returning.
func (h *Handler) Serve(s session.Session) {
	defer s.Close()
	connLog := h.Log.With(log.Fields{"conn_id": s.ConnID(), "protocol": s.Protocol().String()})

	for {
		if h.ShouldStop != nil && h.ShouldStop() {
			return
		}

		outcome, err := s.PollForHeaders(limits.PollTimeout)
		if err != nil {
			connLog.Warn(err.Error())
			return
		}
		switch outcome {
		case session.PollTimeout:
			continue
		case session.PollPeerClosed:
			return
		case session.PollError:
			return
		}

		req, err := s.ReadAndParseRequest()
		if err != nil {
			connLog.Warn(err.Error())
			return
		}
		if req == nil {
			return
		}

		terminal, err := h.serviceOne(s, req, connLog)
		if err != nil {
			connLog.Warn(err.Error())
			return
		}
		if terminal {
			return
		}
	}
}

// serviceOne services one request and reports whether the connection must
// stop looping after it: a catalog miss closes the connection (H1) or
// stream (H2/H3) with a terminal posture per §4.4 step 3, independent of
// whether the write itself errored.
func (h *Handler) serviceOne(s session.Session, req *corpus.HttpMessage, connLog log.Logger) (bool, error) {
	key := h.KeyFormat.Key(req)
	txn, found := h.Catalog.Lookup(key)

	if req.SendContinue && found {
		cont := catalog.ContinueResponse(req.Protocol, req.StreamID)
		if _, err := s.Write(&cont); err != nil {
			return true, errx.Transport("write-continue", s.ConnID(), err)
		}
	}

	if req.Protocol == corpus.ProtocolH1 && req.ContentSize > 0 {
		var rule *corpus.ContentRule
		if found {
			rule = txn.Request.ContentRule
		}
		n, err := s.DrainBody(req.ContentSize, req.ContentLiteral, rule)
		if err != nil {
			return true, err
		}
		req.ContentSize = n
	}

	var resp corpus.HttpMessage
	terminal := false
	if !found {
		connLog.With(log.Fields{"key": key}).Warn("no transaction matched request key")
		resp = catalog.NotFoundResponse(req.Protocol, req.StreamID)
		terminal = true
		h.fail(1)
	} else {
		result := h.Verify.Verify(req, &txn.Request)
		if !result.Passed() {
			for _, m := range result.Mismatches {
				connLog.With(log.Fields{"key": key, "field": m.Field}).Warn(m.Reason)
			}
			h.fail(1)
		}
		resp = txn.Response.Clone()
		resp.Protocol = req.Protocol
		resp.StreamID = req.StreamID
		if txn.Delay > 0 {
			time.Sleep(txn.Delay)
		}
	}

	session.UpdateContentLength(&resp, req.Method)
	session.UpdateTransferEncoding(&resp)
	stampMethodHint(&resp, req.Method)

	if _, err := s.Write(&resp); err != nil {
		return true, errx.Transport("write-response", s.ConnID(), err)
	}
	return terminal, nil
}

func (h *Handler) fail(code int32) {
	if h.Fail != nil {
		h.Fail(code)
	}
}

func stampMethodHint(resp *corpus.HttpMessage, method string) {
	for i, f := range resp.Fields {
		if f.Name == methodHintField {
			resp.Fields[i].Value = method
			return
		}
	}
	resp.Fields = append(resp.Fields, corpus.Field{Name: methodHintField, Value: method})
}
