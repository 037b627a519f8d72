package tlsprofile

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByNameResolvesKnownProfiles(t *testing.T) {
	assert.Equal(t, Modern, ByName("modern"))
	assert.Equal(t, Compatible, ByName("compatible"))
	assert.Equal(t, Secure, ByName("secure"))
}

func TestByNameDefaultsToSecure(t *testing.T) {
	assert.Equal(t, Secure, ByName(""))
	assert.Equal(t, Secure, ByName("nonsense"))
}

func TestApplyModernSetsTLS13OnlyAndNoCipherSuites(t *testing.T) {
	cfg := &tls.Config{}
	Apply(cfg, Modern)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
	assert.Nil(t, cfg.CipherSuites)
}

func TestApplySecureRestrictsToAEADCipherSuites(t *testing.T) {
	cfg := &tls.Config{}
	Apply(cfg, Secure)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotEmpty(t, cfg.CipherSuites)
	for _, suite := range cfg.CipherSuites {
		assert.NotContains(t, []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
		}, suite)
	}
}

func TestApplyCompatibleAllowsCBCSuites(t *testing.T) {
	cfg := &tls.Config{}
	Apply(cfg, Compatible)
	assert.Equal(t, uint16(tls.VersionTLS10), cfg.MinVersion)
	assert.Contains(t, cfg.CipherSuites, uint16(tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA))
}
