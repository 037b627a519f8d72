// Package catalog implements the process-wide Transaction Catalog (§4.1):
// a read-mostly mapping from request key to Transaction, populated at
// startup by the (possibly concurrent) corpus loader and read by workers,
// under a shared read lock, once the listening sockets are open.
//
// Grounded on original_source/verifier-server.cc's Transactions map plus
// its LoadMutex (serializing concurrent insert from parallel file parsing)
// and the max_content_length / synthetic-buffer-aliasing loop in
// Engine::command_run.
package catalog

import (
	"fmt"
	"sync"

	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
)

// Catalog owns every loaded Transaction. It is safe for concurrent Insert
// calls (the out-of-scope loader may parse files in parallel) and, once
// Finalize has run, for concurrent Lookup calls, which share a read lock.
type Catalog struct {
	mu       sync.RWMutex
	byKey    map[string]*corpus.Transaction
	final    bool
	synth    []byte // shared backing buffer for synthesized response bodies
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{byKey: make(map[string]*corpus.Transaction)}
}

// Insert adds txn under its key. Fails if the key is empty, already present,
// or the catalog has already been finalized.
func (c *Catalog) Insert(txn corpus.Transaction) error {
	if txn.Key == "" {
		return errx.Load(txn.File, txn.Line, "transaction has an empty key", nil)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized() {
		return errx.Load(txn.File, txn.Line, "catalog already finalized, cannot insert", nil)
	}
	if _, exists := c.byKey[txn.Key]; exists {
		return errx.Load(txn.File, txn.Line, fmt.Sprintf("duplicate transaction key %q", txn.Key), nil)
	}
	stored := txn
	c.byKey[txn.Key] = &stored
	return nil
}

func (c *Catalog) finalized() bool { return c.final }

// Lookup returns the Transaction registered under key, if any. Safe for
// concurrent use without synchronization once Finalize has completed,
// because the catalog is never mutated past that point (§3 invariant); we
// still take the read lock for safety against the narrow in-between window
// where loader and serve might overlap in an unusual host program.
func (c *Catalog) Lookup(key string) (*corpus.Transaction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byKey[key]
	return t, ok
}

// Len returns the number of loaded transactions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}

// Finalize computes the maximum content length across transactions whose
// response body is synthesized (ContentLiteral == nil) and materializes one
// shared buffer of that size; each such response's ContentSynth field then
// aliases a prefix of that buffer (§4.1). Call once, after all Insert calls
// and before opening any listening socket.
func (c *Catalog) Finalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final {
		return
	}
	var maxLen int64
	for _, t := range c.byKey {
		if t.Response.ContentLiteral == nil && t.Response.ContentSize > maxLen {
			maxLen = t.Response.ContentSize
		}
	}
	c.synth = make([]byte, maxLen)
	for i := range c.synth {
		c.synth[i] = 'x'
	}
	for _, t := range c.byKey {
		if t.Response.ContentLiteral == nil && t.Response.ContentSize > 0 {
			t.Response.ContentSynth = c.synth[:t.Response.ContentSize]
		}
	}
	c.final = true
}

// NotFoundResponse synthesizes the 404 response emitted when a request's key
// has no catalog entry (§4.4 step 3), tagged with the given protocol and
// stream id so the same helper serves H1/H2/H3 (supplemented feature #3).
func NotFoundResponse(protocol corpus.Protocol, streamID int64) corpus.HttpMessage {
	resp := corpus.HttpMessage{
		IsRequest: false,
		Status:    404,
		Reason:    "Not Found",
		Protocol:  protocol,
		StreamID:  streamID,
		Fields: []corpus.Field{
			{Name: "Content-Length", Value: "0"},
		},
		ContentLiteral: []byte{},
	}
	if protocol == corpus.ProtocolH1 {
		resp.HTTPVersion = "1.1"
	}
	return resp
}

// ContinueResponse synthesizes the 100 Continue response emitted before
// draining a request body carrying Expect: 100-continue (§4.4 step 5).
func ContinueResponse(protocol corpus.Protocol, streamID int64) corpus.HttpMessage {
	resp := corpus.HttpMessage{
		IsRequest: false,
		Status:    100,
		Reason:    "Continue",
		Protocol:  protocol,
		StreamID:  streamID,
	}
	if protocol == corpus.ProtocolH1 {
		resp.HTTPVersion = "1.1"
	}
	return resp
}
