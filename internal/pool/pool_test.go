package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verifier-replay/verifier-server/internal/corpus"
	"github.com/verifier-replay/verifier-server/internal/log"
	"github.com/verifier-replay/verifier-server/internal/session"
)

type fakeSession struct {
	id     string
	closed atomic.Bool
}

func newFakeSession(id string) *fakeSession { return &fakeSession{id: id} }

func (f *fakeSession) Accept() error { return nil }
func (f *fakeSession) PollForHeaders(time.Duration) (session.PollOutcome, error) {
	return session.PollPeerClosed, nil
}
func (f *fakeSession) ReadAndParseRequest() (*corpus.HttpMessage, error) { return nil, nil }
func (f *fakeSession) DrainBody(int64, []byte, *corpus.ContentRule) (int64, error) {
	return 0, nil
}
func (f *fakeSession) Write(*corpus.HttpMessage) (int, error) { return 0, nil }
func (f *fakeSession) Close() error                           { f.closed.Store(true); return nil }
func (f *fakeSession) IsClosed() bool                         { return f.closed.Load() }
func (f *fakeSession) Protocol() corpus.Protocol               { return corpus.ProtocolH1 }
func (f *fakeSession) ConnID() string                          { return f.id }

var _ session.Session = (*fakeSession)(nil)

func TestPoolDispatchesEachSubmissionExactlyOnce(t *testing.T) {
	var mu sync.Mutex
	var handled []string

	p := New(4, func(s session.Session) {
		mu.Lock()
		handled = append(handled, s.ConnID())
		mu.Unlock()
	}, log.Discard())
	defer p.Close()

	for i := 0; i < 20; i++ {
		ok := p.Submit(newFakeSession(string(rune('a' + i))))
		require.True(t, ok)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(handled) == 20
	}, time.Second, 5*time.Millisecond)
}

func TestPoolSubmitReturnsFalseAfterClose(t *testing.T) {
	p := New(1, func(session.Session) {}, log.Discard())
	p.Close()

	ok := p.Submit(newFakeSession("late"))
	assert.False(t, ok)
}

func TestPoolCloseWaitsForInFlightHandler(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	p := New(1, func(session.Session) {
		close(started)
		<-release
	}, log.Discard())

	require.True(t, p.Submit(newFakeSession("slow")))
	<-started

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned before handler finished")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-done
}

func TestPoolSingleSlotBackpressuresSubmit(t *testing.T) {
	release := make(chan struct{})
	p := New(1, func(session.Session) {
		<-release
	}, log.Discard())
	defer p.Close()

	require.True(t, p.Submit(newFakeSession("first")))

	submitted := make(chan bool, 1)
	go func() {
		submitted <- p.Submit(newFakeSession("second"))
	}()

	select {
	case <-submitted:
		t.Fatal("second Submit should block while the only worker is busy")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	assert.True(t, <-submitted)
}
