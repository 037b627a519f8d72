package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifier-replay/verifier-server/internal/corpus"
)

func TestInsertAndLookup(t *testing.T) {
	c := New()
	err := c.Insert(corpus.Transaction{Key: "GET /a"})
	require.NoError(t, err)

	txn, ok := c.Lookup("GET /a")
	require.True(t, ok)
	assert.Equal(t, "GET /a", txn.Key)

	_, ok = c.Lookup("GET /missing")
	assert.False(t, ok)
}

func TestInsertRejectsEmptyKey(t *testing.T) {
	c := New()
	err := c.Insert(corpus.Transaction{})
	assert.Error(t, err)
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	c := New()
	require.NoError(t, c.Insert(corpus.Transaction{Key: "GET /a"}))
	err := c.Insert(corpus.Transaction{Key: "GET /a"})
	assert.Error(t, err)
}

func TestInsertRejectsAfterFinalize(t *testing.T) {
	c := New()
	c.Finalize()
	err := c.Insert(corpus.Transaction{Key: "GET /a"})
	assert.Error(t, err)
}

func TestFinalizeSynthesizesSharedBody(t *testing.T) {
	c := New()
	require.NoError(t, c.Insert(corpus.Transaction{
		Key: "GET /big",
		Response: corpus.HttpMessage{
			ContentSize: 128,
		},
	}))
	require.NoError(t, c.Insert(corpus.Transaction{
		Key: "GET /small",
		Response: corpus.HttpMessage{
			ContentSize: 4,
		},
	}))
	c.Finalize()

	big, _ := c.Lookup("GET /big")
	small, _ := c.Lookup("GET /small")
	assert.Len(t, big.Response.ContentSynth, 128)
	assert.Len(t, small.Response.ContentSynth, 4)
}

func TestFinalizeLeavesLiteralBodiesAlone(t *testing.T) {
	c := New()
	require.NoError(t, c.Insert(corpus.Transaction{
		Key: "GET /lit",
		Response: corpus.HttpMessage{
			ContentLiteral: []byte("hello"),
			ContentSize:    5,
		},
	}))
	c.Finalize()

	txn, _ := c.Lookup("GET /lit")
	assert.Nil(t, txn.Response.ContentSynth)
	assert.Equal(t, []byte("hello"), txn.Response.Body())
}

func TestNotFoundResponse(t *testing.T) {
	resp := NotFoundResponse(corpus.ProtocolH1, 0)
	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, "1.1", resp.HTTPVersion)

	cl, ok := resp.FindField("Content-Length")
	require.True(t, ok)
	assert.Equal(t, "0", cl.Value)
}

func TestContinueResponse(t *testing.T) {
	resp := ContinueResponse(corpus.ProtocolH2, 3)
	assert.Equal(t, 100, resp.Status)
	assert.Equal(t, int64(3), resp.StreamID)
	assert.Empty(t, resp.HTTPVersion)
}
