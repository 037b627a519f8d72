package tlsregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestRegisterResolvesVerifyMode(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("example.com", corpus.TLSDirectives{VerifyMode: intPtr(2)}))

	b, ok := r.Lookup("example.com")
	require.True(t, ok)
	assert.Equal(t, 2, b.VerifyMode)
}

func TestRegisterResolvesPeerVerifyFromCertDirectives(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("a.test", corpus.TLSDirectives{RequestCertificate: boolPtr(true)}))

	b, ok := r.Lookup("a.test")
	require.True(t, ok)
	assert.Equal(t, verifyPeer, b.VerifyMode)
}

func TestRegisterDefaultsToNoVerify(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("b.test", corpus.TLSDirectives{}))

	b, ok := r.Lookup("b.test")
	require.True(t, ok)
	assert.Equal(t, 0, b.VerifyMode)
}

func TestRegisterRejectsConflictingDirectives(t *testing.T) {
	r := New()
	err := r.Register("c.test", corpus.TLSDirectives{
		RequestCertificate: boolPtr(true),
		VerifyMode:         intPtr(0),
	})
	assert.Error(t, err)
}

func TestRegisterIdempotentForIdenticalBehavior(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("d.test", corpus.TLSDirectives{VerifyMode: intPtr(1)}))
	err := r.Register("d.test", corpus.TLSDirectives{VerifyMode: intPtr(1)})
	assert.NoError(t, err)
}

func TestRegisterRejectsConflictingReregistration(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("e.test", corpus.TLSDirectives{VerifyMode: intPtr(1)}))
	err := r.Register("e.test", corpus.TLSDirectives{VerifyMode: intPtr(0)})
	assert.Error(t, err)
}

func TestLookupMissingSNI(t *testing.T) {
	r := New()
	_, ok := r.Lookup("nowhere.test")
	assert.False(t, ok)
}
