// Package tlsregistry implements the per-SNI TLS Policy Registry (§4.2): it
// resolves the three independent "tls" stanza directives
// (request-certificate, proxy-provided-certificate, verify-mode) into a
// single HandshakeBehavior, rejecting mutually-inconsistent combinations,
// and keys the result by SNI for the TLS accept path to consult.
//
// Grounded line-for-line on the conflict matrix and resolution order in
// handle_tls_node_directives in original_source/verifier-server.cc.
package tlsregistry

import (
	"fmt"
	"sync"

	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/errx"
)

// verifyPeer mirrors the original's SSL_VERIFY_PEER constant: any verify
// mode greater than zero means peer verification is required.
const verifyPeer = 1

// Registry maps SNI to HandshakeBehavior.
type Registry struct {
	mu  sync.RWMutex
	byS map[string]corpus.HandshakeBehavior
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byS: make(map[string]corpus.HandshakeBehavior)}
}

// Register resolves d into a HandshakeBehavior and stores it under sni.
// Fails if d's directives disagree with each other, or if sni was already
// registered with a different behavior (§3 invariant, §4.2).
func (r *Registry) Register(sni string, d corpus.TLSDirectives) error {
	if err := checkConsistency(d); err != nil {
		return err
	}

	behavior := resolve(d)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byS[sni]; ok {
		if !existing.Equal(behavior) {
			return errx.Load("", 0, fmt.Sprintf("SNI %q registered twice with conflicting TLS behaviors", sni), nil)
		}
		return nil
	}
	r.byS[sni] = behavior
	return nil
}

// Lookup returns the HandshakeBehavior registered for sni, if any.
func (r *Registry) Lookup(sni string) (corpus.HandshakeBehavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byS[sni]
	return b, ok
}

// checkConsistency implements the six-clause disagreement check from
// handle_tls_node_directives: whenever two of the three directives are
// present, they must imply the same posture.
func checkConsistency(d corpus.TLSDirectives) error {
	pc := ternary(d.ProxyProvidedCertificate) // -1 unset, 0 false, 1 true
	rc := ternary(d.RequestCertificate)
	var vm int = -1
	if d.VerifyMode != nil {
		vm = *d.VerifyMode
	}

	conflict := (pc == 1 && rc == 0) ||
		(pc == 0 && rc == 1) ||
		(pc == 1 && vm == 0) ||
		(pc == 0 && vm > 0) ||
		(rc == 1 && vm == 0) ||
		(rc == 0 && vm > 0)

	if conflict {
		return errx.Load("", 0, "tls node has conflicting proxy-provided-certificate, request-certificate, and verify-mode values", nil)
	}
	return nil
}

func ternary(b *bool) int {
	if b == nil {
		return -1
	}
	if *b {
		return 1
	}
	return 0
}

// resolve implements: verify-mode if set; else peer if either
// request-certificate or proxy-provided-certificate is true; else none.
func resolve(d corpus.TLSDirectives) corpus.HandshakeBehavior {
	behavior := corpus.HandshakeBehavior{ALPN: d.ALPN}
	switch {
	case d.VerifyMode != nil && *d.VerifyMode > 0:
		behavior.VerifyMode = *d.VerifyMode
	case (d.RequestCertificate != nil && *d.RequestCertificate) ||
		(d.ProxyProvidedCertificate != nil && *d.ProxyProvidedCertificate):
		behavior.VerifyMode = verifyPeer
	default:
		behavior.VerifyMode = 0
	}
	return behavior
}
