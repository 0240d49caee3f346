package dapclient

import (
	"sync"
	"sync/atomic"

	"github.com/google/go-dap"
)

// SubscriptionId identifies a persistent event listener returned by
// Client.SubscribeEvent, used to unsubscribe later.
type SubscriptionId int64

// EventHandler receives one event's body. An internal handler (Session's
// own bookkeeping, registered through Client.SubscribeInternalEvent) must never call
// SendRequest and runs inline on the receiver goroutine. An external
// handler (registered through the public Client.SubscribeEvent) may
// issue requests; per I3 it is scheduled on its own goroutine after the
// dispatch pass instead, so it can never block the receiver it depends
// on for its own response.
type EventHandler func(event dap.Message)

type subscription struct {
	id       SubscriptionId
	handler  EventHandler
	internal bool
}

// eventBus tracks persistent subscriptions and one-shot waiters, keyed
// by event name. Dispatch runs subscriptions in registration order,
// then fulfills one-shot waiters (spec.md §4.3 event dispatch table).
type eventBus struct {
	mu        sync.Mutex
	subs      map[string][]subscription
	waiters   map[string][]chan dap.Message
	nextSubID int64
}

func newEventBus() *eventBus {
	return &eventBus{
		subs:    make(map[string][]subscription),
		waiters: make(map[string][]chan dap.Message),
	}
}

func (b *eventBus) subscribe(eventName string, handler EventHandler, internal bool) SubscriptionId {
	id := SubscriptionId(atomic.AddInt64(&b.nextSubID, 1))
	b.mu.Lock()
	b.subs[eventName] = append(b.subs[eventName], subscription{id: id, handler: handler, internal: internal})
	b.mu.Unlock()
	return id
}

func (b *eventBus) unsubscribe(eventName string, id SubscriptionId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[eventName]
	for i, s := range list {
		if s.id == id {
			b.subs[eventName] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// waitOneShot registers a channel that receives the next occurrence of
// eventName. The caller is responsible for the timeout; if it gives up,
// it must call cancelWait so a stale channel is not leaked.
func (b *eventBus) waitOneShot(eventName string) chan dap.Message {
	ch := make(chan dap.Message, 1)
	b.mu.Lock()
	b.waiters[eventName] = append(b.waiters[eventName], ch)
	b.mu.Unlock()
	return ch
}

func (b *eventBus) cancelWait(eventName string, ch chan dap.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.waiters[eventName]
	for i, w := range list {
		if w == ch {
			b.waiters[eventName] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// waitOneShotAny registers a single channel across several event names
// at once — used for the execution-aware pre-registration ahead of
// Continue/Next/StepIn/StepOut, which races Stopped against Terminated.
// The returned cancel func must be called once the caller stops
// waiting, or a stale registration under the names it didn't win leaks.
func (b *eventBus) waitOneShotAny(names ...string) (ch chan dap.Message, cancel func()) {
	ch = make(chan dap.Message, len(names))
	b.mu.Lock()
	for _, n := range names {
		b.waiters[n] = append(b.waiters[n], ch)
	}
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, n := range names {
			list := b.waiters[n]
			for i, w := range list {
				if w == ch {
					b.waiters[n] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
	}
	return ch, cancel
}

// dispatch runs internal handlers and fulfills one-shot waiters inline —
// together, the "event-dispatch pass" spec.md §4.3 describes — then
// schedules external subscriber handlers on their own goroutine each, so
// one that calls SendRequest from inside its handler cannot deadlock the
// receiver goroutine waiting on its own response.
func (b *eventBus) dispatch(eventName string, msg dap.Message) {
	b.mu.Lock()
	handlers := append([]subscription(nil), b.subs[eventName]...)
	waiters := b.waiters[eventName]
	delete(b.waiters, eventName)
	b.mu.Unlock()

	var external []subscription
	for _, s := range handlers {
		if s.internal {
			s.handler(msg)
			continue
		}
		external = append(external, s)
	}
	for _, ch := range waiters {
		ch <- msg
	}
	for _, s := range external {
		go s.handler(msg)
	}
}
