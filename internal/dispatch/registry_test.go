package dispatch

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads []interface{}
	failNext bool
	closed   bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return errors.New("write on closed conn")
	}
	f.payloads = append(f.payloads, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestPublishReachesOnlyEarlierSubscribers(t *testing.T) {
	r := NewRegistry(nil)
	early := &fakeConn{}
	r.Subscribe("rider-1", early)

	require.Equal(t, 1, r.Publish("rider-1", "first"))

	late := &fakeConn{}
	r.Subscribe("rider-1", late)
	require.Equal(t, 2, r.Publish("rider-1", "second"))

	assert.Equal(t, 2, early.received())
	// the late viewer never sees the payload published before it joined
	assert.Equal(t, 1, late.received())
}

func TestPublishScopedToRider(t *testing.T) {
	r := NewRegistry(nil)
	a := &fakeConn{}
	b := &fakeConn{}
	r.Subscribe("rider-a", a)
	r.Subscribe("rider-b", b)

	r.Publish("rider-a", "hello")
	assert.Equal(t, 1, a.received())
	assert.Equal(t, 0, b.received())
}

func TestUnsubscribeIsIdempotentAndPrunesEntry(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}
	s := r.Subscribe("rider-1", c)
	require.Equal(t, 1, r.Subscribers("rider-1"))

	r.Unsubscribe("rider-1", s)
	r.Unsubscribe("rider-1", s)
	assert.Equal(t, 0, r.Subscribers("rider-1"))
	assert.Equal(t, 0, r.Publish("rider-1", "nobody home"))
}

func TestFailedSessionIsClosedAndPruned(t *testing.T) {
	r := NewRegistry(nil)
	good := &fakeConn{}
	bad := &fakeConn{failNext: true}
	r.Subscribe("rider-1", good)
	r.Subscribe("rider-1", bad)

	assert.Equal(t, 1, r.Publish("rider-1", "payload"))
	assert.True(t, bad.closed)
	assert.Equal(t, 1, r.Subscribers("rider-1"))
}

func TestBroadcastReachesAllLiveViewers(t *testing.T) {
	r := NewRegistry(nil)
	conns := make([]*fakeConn, 0)
	for _, rider := range []string{"rider-a", "rider-a", "rider-b", "rider-c"} {
		c := &fakeConn{}
		conns = append(conns, c)
		r.Subscribe(rider, c)
	}
	gone := &fakeConn{}
	s := r.Subscribe("rider-d", gone)
	r.Unsubscribe("rider-d", s)

	require.Equal(t, len(conns), r.Broadcast("new job"))
	for _, c := range conns {
		assert.Equal(t, 1, c.received())
	}
	assert.Equal(t, 0, gone.received())
}

func TestConcurrentSubscribePublish(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &fakeConn{}
			s := r.Subscribe("rider-1", c)
			r.Publish("rider-1", "ping")
			r.Broadcast("pong")
			r.Unsubscribe("rider-1", s)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Subscribers("rider-1"))
}
