package cdp

import "sync"

// EventWildcard subscribes a handler to every inbound event regardless
// of method. Wildcard handlers run after the method's own handlers and
// do not trigger domain enabling.
const EventWildcard = "*"

// Subscription identifies one registered event handler so it can be
// removed later. Handlers are funcs and cannot be compared, so the
// router hands out tokens instead.
type Subscription struct {
	method string
	id     uint64
}

// Method returns the event method the subscription listens for.
func (s *Subscription) Method() string {
	if s == nil {
		return ""
	}
	return s.method
}

type routerEntry struct {
	id uint64
	fn func(Event)
}

// eventRouter maps event methods to their handlers and fans inbound
// events out to them. Registration and dispatch share one lock scoped
// to the registry; handler code always runs with the lock released so
// a handler can subscribe, unsubscribe, or issue commands without
// deadlocking the read loop.
type eventRouter struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string][]routerEntry
}

func newEventRouter() *eventRouter {
	return &eventRouter{entries: make(map[string][]routerEntry)}
}

// subscribe registers fn for events with the given method. Handlers
// for one method are dispatched in registration order.
func (r *eventRouter) subscribe(method string, fn func(Event)) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries[method] = append(r.entries[method], routerEntry{id: r.nextID, fn: fn})
	return &Subscription{method: method, id: r.nextID}
}

// unsubscribe removes the handler named by sub. Removing a handler
// that is already gone is a no-op. When the last handler for a method
// goes, the entry is dropped in the same critical section so a
// concurrent subscribe cannot be lost to a stale emptiness check.
func (r *eventRouter) unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries[sub.method]
	for i, e := range entries {
		if e.id == sub.id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.entries, sub.method)
		return
	}
	r.entries[sub.method] = entries
}

// dispatch delivers evt to every handler registered for its method, in
// registration order. The handler list is snapshotted under the lock
// and invoked after release, so handlers added or removed mid-dispatch
// do not corrupt the iteration and a removed handler is never invoked
// by a dispatch that starts after its removal.
func (r *eventRouter) dispatch(evt Event) {
	r.mu.Lock()
	entries := r.entries[evt.Method]
	wildcards := r.entries[EventWildcard]
	snapshot := make([]func(Event), 0, len(entries)+len(wildcards))
	for _, e := range entries {
		snapshot = append(snapshot, e.fn)
	}
	for _, e := range wildcards {
		snapshot = append(snapshot, e.fn)
	}
	r.mu.Unlock()

	for _, fn := range snapshot {
		fn(evt)
	}
}

// methods returns every event method with at least one handler.
func (r *eventRouter) methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for method := range r.entries {
		out = append(out, method)
	}
	return out
}
