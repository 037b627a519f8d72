package server

import (
	"github.com/verifier-replay/verifier-server/internal/catalog"
	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/tlsregistry"
)

// corpusSink adapts the catalog and TLS registry to corpus.Sink, the
// single interface the loader depends on (§1 scope: the corpus file
// format itself is an out-of-scope collaborator).
type corpusSink struct {
	catalog  *catalog.Catalog
	registry *tlsregistry.Registry
}

func (s *corpusSink) Transaction(t corpus.Transaction) error {
	return s.catalog.Insert(t)
}

func (s *corpusSink) TLSBehavior(sni string, d corpus.TLSDirectives) error {
	return s.registry.Register(sni, d)
}
