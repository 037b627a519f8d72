package corpus

// TLSDirectives carries the raw, unresolved contents of a "tls" protocol
// stanza as parsed from the corpus. Resolving these into a HandshakeBehavior
// (and enforcing the three-directive consistency rule) is core logic owned
// by internal/tlsregistry (§4.2), not by the loader.
type TLSDirectives struct {
	// RequestCertificate is nil if absent, else the parsed bool value of
	// "request-certificate".
	RequestCertificate *bool
	// ProxyProvidedCertificate is nil if absent, else the parsed bool value
	// of "proxy-provided-certificate".
	ProxyProvidedCertificate *bool
	// VerifyMode is nil if absent, else the parsed integer value of
	// "verify-mode".
	VerifyMode *int
	ALPN       []string
}
