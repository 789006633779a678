// Package hub is the in-process group-messaging layer. Subscribers own a
// named channel; channels can join named groups; events fan out to a group
// or go point-to-point to one channel.
//
// Delivery is in order per sender (sends happen under one lock) and
// non-blocking: a subscriber that stops draining its channel loses events
// rather than stalling the sender.
package hub

import (
	"log/slog"
	"sync"

	"github.com/Trevor-Mansfield/WalmartReceiptSplitter/internal/metrics"
)

// subscriberBuffer bounds how many undelivered events a subscriber may hold.
const subscriberBuffer = 32

// Hub routes events between named channels and groups.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan any
	groups      map[string]map[string]struct{}
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]chan any),
		groups:      make(map[string]map[string]struct{}),
	}
}

// Subscription is one reader's claim on a named channel. The handle pins
// the exact stream it was issued for, so releasing a stale handle cannot
// tear down a newer subscriber of the same name.
type Subscription struct {
	name string
	ch   chan any
}

// Events returns the subscription's event stream. The stream is closed when
// the subscription is released or replaced.
func (s *Subscription) Events() <-chan any {
	return s.ch
}

// Subscribe registers a channel under the given name and returns its
// subscription. Re-subscribing a live name replaces the old stream; the old
// channel is closed but keeps the name's group memberships.
func (h *Hub) Subscribe(name string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subscribers[name]; ok {
		close(old)
	}
	ch := make(chan any, subscriberBuffer)
	h.subscribers[name] = ch
	return &Subscription{name: name, ch: ch}
}

// Unsubscribe releases the subscription: the channel is removed, its stream
// closed, and the name dropped from every group. A handle that a newer
// Subscribe already replaced is ignored. Reports whether this handle was
// still the live one.
func (h *Hub) Unsubscribe(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[sub.name] != sub.ch {
		return false
	}
	h.drop(sub.name)
	return true
}

// Drop removes whatever channel is currently registered under the name,
// closes its stream, and drops the name from every group.
func (h *Hub) Drop(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(name)
}

// drop requires h.mu to be held.
func (h *Hub) drop(name string) {
	ch, ok := h.subscribers[name]
	if !ok {
		return
	}
	delete(h.subscribers, name)
	close(ch)
	for group, members := range h.groups {
		delete(members, name)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// JoinGroup adds the channel to a group. Unknown channels are ignored.
func (h *Hub) JoinGroup(group, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[name]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[name] = struct{}{}
}

// LeaveGroup removes the channel from a group.
func (h *Hub) LeaveGroup(group, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, name)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// GroupSend fans the event out to every member of the group.
func (h *Hub) GroupSend(group string, event any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name := range h.groups[group] {
		h.deliver(name, event)
	}
	metrics.EventsBroadcast.Inc()
}

// Send delivers the event to a single channel.
func (h *Hub) Send(name string, event any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.deliver(name, event)
}

// deliver requires h.mu to be held.
func (h *Hub) deliver(name string, event any) {
	ch, ok := h.subscribers[name]
	if !ok {
		return
	}
	select {
	case ch <- event:
	default:
		slog.Warn("Subscriber too slow, dropping event", "channel", name)
		metrics.EventsDropped.Inc()
	}
}
