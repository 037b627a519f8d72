package corpus

// Sink receives parsed corpus entities as the Loader walks the corpus tree.
// Splitting the interface this way (rather than returning one big slice)
// mirrors the original server's per-transaction/per-session callback
// handler (ServerReplayFileHandler) and lets a concurrent Loader feed
// multiple Sink consumers without building an intermediate in-memory tree.
type Sink interface {
	// Transaction is invoked once per fully-parsed transaction, after any
	// session-level "all" field merge has already been applied and the key
	// has been derived.
	Transaction(t Transaction) error

	// TLSBehavior is invoked once per "tls" protocol stanza that names an
	// SNI, before any Transaction callback that depends on it. Resolving
	// the raw directives into a HandshakeBehavior is the registry's job.
	TLSBehavior(sni string, d TLSDirectives) error
}

// Loader parses a corpus (a file or a directory tree of files) and feeds
// every transaction and TLS stanza it finds to sink. This is the single
// interface the core pipeline depends on; the corpus file format itself is
// treated as an external collaborator per the specification's scope (§1).
type Loader interface {
	Load(path string, sink Sink) error
}
