package bus

import (
	"sync"
	"testing"

	"github.com/emrsoft/realtime/internal/hubproto"
	"github.com/emrsoft/realtime/internal/log"
)

func newTestBus() *Bus {
	return New(log.New("error"))
}

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) {
			got = append(got, i)
		})
	}
	b.Publish(hubproto.OnlineUsers{OnlineUsers: []string{"1_a_b"}})

	if len(got) != 5 {
		t.Fatalf("got %d invocations, want 5", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("invocation order %v, want ascending", got)
		}
	}
}

func TestPublishOnlyMatchingName(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	var onlineCalls, callCalls int
	b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) { onlineCalls++ })
	b.Subscribe(hubproto.EventIncomingCall, func(hubproto.Event) { callCalls++ })

	b.Publish(hubproto.OnlineUsers{})
	b.Publish(hubproto.OnlineUsers{})
	b.Publish(hubproto.IncomingCall{RoomID: "r1"})

	if onlineCalls != 2 || callCalls != 1 {
		t.Fatalf("onlineCalls=%d callCalls=%d, want 2 and 1", onlineCalls, callCalls)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	var calls int
	cancel := b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) { calls++ })

	b.Publish(hubproto.OnlineUsers{})
	cancel()
	cancel() // idempotent
	b.Publish(hubproto.OnlineUsers{})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestUnsubscribeHonoredMidDispatch(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	var secondCalled bool
	var cancelSecond func()
	b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) {
		cancelSecond()
	})
	cancelSecond = b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) {
		secondCalled = true
	})

	b.Publish(hubproto.OnlineUsers{})

	if secondCalled {
		t.Fatal("handler ran despite being unsubscribed earlier in the same dispatch")
	}
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	var after bool
	b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) {
		panic("handler exploded")
	})
	b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) { after = true })

	b.Publish(hubproto.OnlineUsers{}) // must not panic the publisher

	if !after {
		t.Fatal("handler after the panicking one did not run")
	}
}

func TestNilHandlerAndNilEvent(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	cancel := b.Subscribe(hubproto.EventOnlineUsers, nil)
	cancel()
	b.Publish(nil)
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	t.Parallel()
	b := newTestBus()

	var mu sync.Mutex
	var calls int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel := b.Subscribe(hubproto.EventOnlineUsers, func(hubproto.Event) {
				mu.Lock()
				calls++
				mu.Unlock()
			})
			for j := 0; j < 50; j++ {
				b.Publish(hubproto.OnlineUsers{})
			}
			cancel()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatal("expected at least one delivery under concurrency")
	}
}
