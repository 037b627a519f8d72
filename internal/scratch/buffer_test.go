package scratch

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferStaysInMemoryUnderLimit(t *testing.T) {
	b := New(1024)
	defer b.Close()

	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, b.IsSpilled())
	assert.Equal(t, []byte("hello"), b.Bytes())
	assert.Equal(t, int64(5), b.Size())
}

func TestBufferSpillsPastLimit(t *testing.T) {
	b := New(4)
	defer b.Close()

	_, err := b.Write([]byte("hello world"))
	require.NoError(t, err)

	assert.True(t, b.IsSpilled())
	assert.Nil(t, b.Bytes())
	assert.Equal(t, int64(11), b.Size())

	r, err := b.Reader()
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestBufferReaderWorksAcrossMultipleWritesAfterSpill(t *testing.T) {
	b := New(4)
	defer b.Close()

	_, err := b.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = b.Write([]byte("efgh"))
	require.NoError(t, err)

	r, err := b.Reader()
	require.NoError(t, err)
	defer r.Close()
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", string(content))
}

func TestBufferWriteAfterCloseErrors(t *testing.T) {
	b := New(16)
	require.NoError(t, b.Close())

	_, err := b.Write([]byte("x"))
	assert.Error(t, err)
}

func TestBufferCloseIsIdempotent(t *testing.T) {
	b := New(16)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestBufferDefaultsLimitWhenNonPositive(t *testing.T) {
	b := New(0)
	defer b.Close()
	_, err := b.Write([]byte("small"))
	require.NoError(t, err)
	assert.False(t, b.IsSpilled())
}
