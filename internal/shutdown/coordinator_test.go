package shutdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorNotStoppedInitially(t *testing.T) {
	c := New()
	assert.False(t, c.Stopped())
}

func TestCoordinatorStopClosesDoneAndSetsStopped(t *testing.T) {
	c := New()
	c.Stop()

	assert.True(t, c.Stopped())
	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed after Stop")
	}
}

func TestCoordinatorStopIsIdempotent(t *testing.T) {
	c := New()
	c.Stop()
	c.Stop()
	assert.True(t, c.Stopped())
}

func TestCoordinatorGoTracksGoroutinesForWait(t *testing.T) {
	c := New()
	started := make(chan struct{})
	release := make(chan struct{})

	c.Go(func() {
		close(started)
		<-release
	})

	<-started
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before tracked goroutine finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after goroutine finished")
	}
}

func TestCoordinatorWaitReturnsImmediatelyWithNoGoroutines(t *testing.T) {
	c := New()
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}
