// Package tlsprofile provides named TLS version/cipher-suite profiles for
// the HTTPS and HTTP/2-over-TLS listeners, adapted from the teacher's
// pkg/tlsconfig package (client-dialer-oriented) into server-side listener
// configuration: the CLI's --tls-profile flag selects one of these to
// apply to the accepting tls.Config (§4.2, §6).
package tlsprofile

import "crypto/tls"

// VersionProfile bounds the negotiable TLS version range.
type VersionProfile struct {
	Min  uint16
	Max  uint16
	Name string
}

var (
	// Modern: TLS 1.3 only.
	Modern = VersionProfile{Min: tls.VersionTLS13, Max: tls.VersionTLS13, Name: "modern"}

	// Secure: TLS 1.2 and 1.3. Default profile.
	Secure = VersionProfile{Min: tls.VersionTLS12, Max: tls.VersionTLS13, Name: "secure"}

	// Compatible: TLS 1.0 through 1.3, for exercising a proxy's handling of
	// older negotiated versions.
	Compatible = VersionProfile{Min: tls.VersionTLS10, Max: tls.VersionTLS13, Name: "compatible"}
)

// ByName resolves a --tls-profile flag value, defaulting to Secure for an
// unrecognized or empty name.
func ByName(name string) VersionProfile {
	switch name {
	case "modern":
		return Modern
	case "compatible":
		return Compatible
	default:
		return Secure
	}
}

// cipherSuitesTLS12Secure mirrors the teacher's CipherSuitesTLS12Secure:
// ECDHE with AEAD only, no CBC.
var cipherSuitesTLS12Secure = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

// cipherSuitesTLS12Compatible additionally allows CBC-mode suites, for the
// Compatible profile.
var cipherSuitesTLS12Compatible = append(append([]uint16{}, cipherSuitesTLS12Secure...),
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
)

// Apply sets MinVersion/MaxVersion/CipherSuites on config per profile.
func Apply(config *tls.Config, profile VersionProfile) {
	config.MinVersion = profile.Min
	config.MaxVersion = profile.Max
	switch {
	case profile.Min >= tls.VersionTLS13:
		config.CipherSuites = nil // TLS 1.3 picks its own suites
	case profile.Min >= tls.VersionTLS12:
		config.CipherSuites = cipherSuitesTLS12Secure
	default:
		config.CipherSuites = cipherSuitesTLS12Compatible
	}
}
