// Package scratch provides a memory-efficient byte sink that spills to a
// temporary file once a request body exceeds a configurable threshold,
// so a corpus transaction with a large declared content length cannot
// force the whole body into process memory while it is being drained
// and verified.
//
// Adapted from the teacher's pkg/buffer package (an in-memory-or-spilled
// store for response bodies) into a request-body drain buffer.
package scratch

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/verifier-replay/verifier-server/internal/errx"
	"github.com/verifier-replay/verifier-server/internal/limits"
)

// DefaultMemoryLimit bounds in-memory body accumulation before spilling.
const DefaultMemoryLimit = limits.DefaultBodyMemLimit

// Buffer stores written bytes in memory up to a limit, then in a temp
// file beyond it. Safe for concurrent Close against an in-flight Write.
type Buffer struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	mu     sync.Mutex
	closed bool
}

// New returns a Buffer that spills to disk past limit bytes (or
// DefaultMemoryLimit if limit <= 0).
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// Write appends p, spilling to a temp file once the memory limit is
// crossed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errx.Transport("scratch-write", "", io.ErrClosedPipe)
	}

	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "verifier-body-*.tmp")
		if err != nil {
			return 0, errx.Transport("scratch-spill", "", err)
		}
		b.file = tmp
		b.path = tmp.Name()
		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.closeLocked()
				return 0, errx.Transport("scratch-spill", "", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, errx.Transport("scratch-write-disk", "", err)
	}
	return n, nil
}

// Bytes returns the in-memory content; nil once the buffer has spilled.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// IsSpilled reports whether Write has moved content to disk.
func (b *Buffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Size returns the total number of bytes written so far.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Reader returns a fresh reader over the buffer's full content, whether
// in memory or spilled.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errx.Transport("scratch-reader", "", io.ErrClosedPipe)
	}
	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, errx.Transport("scratch-sync", "", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, errx.Transport("scratch-open", "", err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close releases the backing temp file, if any. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Buffer) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = removeErr
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return errx.Transport("scratch-close", "", err)
		}
	}
	return nil
}
