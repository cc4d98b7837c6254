package messaging

import (
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is the caller's handle on one registered handler.
// Callers never see registry internals; they hold the handle and call
// Unsubscribe when done.
type Subscription struct {
	id          string
	destination string
	handler     Handler
	client      *Client

	live atomic.Bool
	once sync.Once
}

// ID returns the opaque handle id.
func (s *Subscription) ID() string { return s.id }

// Destination returns the destination the handler is registered on.
func (s *Subscription) Destination() string { return s.destination }

// Active reports whether the handler still receives messages.
func (s *Subscription) Active() bool { return s.live.Load() }

// Unsubscribe removes this handler. When it was the last handler on its
// destination and the client is connected, the wire subscription is
// cancelled. It always succeeds and further calls do nothing.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.live.Store(false)
		s.client.unsubscribe(s)
	})
}

// destination is one wire-level subscription shared by local handlers.
type destination struct {
	subs []*Subscription

	// wireID is the STOMP subscription id on the current session, or "" when
	// no SUBSCRIBE has been written on it.
	wireID string
}

// registry maps destinations to ordered handler lists and wire ids back to
// destinations. It has no lock of its own; the Client guards it with its mutex.
type registry struct {
	dests    map[string]*destination
	byWire   map[string]string
	nextWire uint64
}

func newRegistry() *registry {
	return &registry{
		dests:  make(map[string]*destination),
		byWire: make(map[string]string),
	}
}

// add registers sub at the end of its destination's list. first reports
// whether the destination had no handlers before.
func (r *registry) add(sub *Subscription) (first bool) {
	d, ok := r.dests[sub.destination]
	if !ok {
		d = &destination{}
		r.dests[sub.destination] = d
	}
	d.subs = append(d.subs, sub)
	sub.live.Store(true)
	return !ok
}

// remove drops sub. When it was the last handler, the destination is
// forgotten and its wire id (possibly "") is returned with last set.
func (r *registry) remove(sub *Subscription) (last bool, wireID string) {
	d, ok := r.dests[sub.destination]
	if !ok {
		return false, ""
	}
	i := slices.Index(d.subs, sub)
	if i < 0 {
		return false, ""
	}
	d.subs = slices.Delete(d.subs, i, i+1)
	if len(d.subs) > 0 {
		return false, ""
	}
	delete(r.dests, sub.destination)
	if d.wireID != "" {
		delete(r.byWire, d.wireID)
	}
	return true, d.wireID
}

// assignWire allocates a wire id for dest if it has handlers and is not yet
// subscribed on the current session.
func (r *registry) assignWire(dest string) (string, bool) {
	d, ok := r.dests[dest]
	if !ok || d.wireID != "" {
		return "", false
	}
	d.wireID = "sub-" + strconv.FormatUint(r.nextWire, 10)
	r.nextWire++
	r.byWire[d.wireID] = dest
	return d.wireID, true
}

// resolve maps a wire id from a MESSAGE frame back to its destination.
func (r *registry) resolve(wireID string) (string, bool) {
	dest, ok := r.byWire[wireID]
	return dest, ok
}

// snapshot copies the live handlers of dest in registration order.
func (r *registry) snapshot(dest string) []*Subscription {
	d, ok := r.dests[dest]
	if !ok {
		return nil
	}
	return slices.Clone(d.subs)
}

// resetWire forgets every wire id. Called when a session ends.
func (r *registry) resetWire() {
	for _, d := range r.dests {
		d.wireID = ""
	}
	clear(r.byWire)
}

// destinations returns every destination with at least one handler, sorted.
func (r *registry) destinations() []string {
	out := make([]string, 0, len(r.dests))
	for dest := range r.dests {
		out = append(out, dest)
	}
	slices.Sort(out)
	return out
}

// subscriberCount returns the number of live handlers.
func (r *registry) subscriberCount() int {
	n := 0
	for _, d := range r.dests {
		n += len(d.subs)
	}
	return n
}

// clear deactivates and forgets every handler.
func (r *registry) clear() {
	for _, d := range r.dests {
		for _, sub := range d.subs {
			sub.live.Store(false)
		}
	}
	clear(r.dests)
	clear(r.byWire)
}

func newSubscriptionID() string {
	return uuid.NewString()
}
