// Copyright 2026 repostats contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the taxonomy of events the bus carries: System,
// Scan, Queue, and Plugin, each with a handful of sub-kinds (see spec §3).
type EventKind string

const (
	// Queue events, emitted by the Message Log.
	EventQueueMessageAdded EventKind = "queue.message_added"

	// System events.
	EventMemoryLow    EventKind = "system.memory_low"
	EventMemoryNormal EventKind = "system.memory_normal"
	EventShuttingDown EventKind = "system.shutting_down"

	// Scan events, emitted by Streaming Scanner consumers relaying the
	// producer's tagged-union ScanMessage stream onto the bus.
	EventScanStarted   EventKind = "scan.started"
	EventScanProgress  EventKind = "scan.progress"
	EventScanCompleted EventKind = "scan.completed"
	EventScanError     EventKind = "scan.error"

	// Plugin events, emitted by the Plugin Engine during activation and
	// shutdown.
	EventPluginActivated   EventKind = "plugin.activated"
	EventPluginDeactivated EventKind = "plugin.deactivated"
	EventPluginError       EventKind = "plugin.error"
)

// Event is one item carried on the bus.
type Event struct {
	Kind      EventKind
	Data      map[string]interface{}
	Timestamp time.Time
}

// EventFilter decides whether a subscriber wants a given event. A nil
// filter matches everything.
type EventFilter func(Event) bool

// Subscriber is a per-consumer FIFO mailbox. Events the subscriber's filter
// rejects are never enqueued; events it accepts are delivered in publish
// order via Events().
type Subscriber struct {
	id       string
	label    string
	filter   EventFilter
	queue    chan *Event
	mu       sync.Mutex
	errors   int
	lastSent time.Time
	created  time.Time
}

// ID returns the subscriber's id, as given to Subscribe (or minted by
// SubscribeAuto).
func (s *Subscriber) ID() string { return s.id }

// Events returns the channel new events arrive on. Closed when the
// subscriber is unsubscribed.
func (s *Subscriber) Events() <-chan *Event { return s.queue }

// SubscriberStats is a point-in-time snapshot returned by
// EventBus.SubscriberStatistics.
type SubscriberStats struct {
	ID         string
	Label      string
	QueueDepth int
	Errors     int
	LastSentAt time.Time
	IdleFor    time.Duration
}

// BusHealth summarizes EventBus.AssessHealth.
type BusHealth struct {
	Subscribers  int
	TotalQueued  int
	OverThreshold bool
}

// EventBus is an in-process publish/subscribe hub with bounded per-
// subscriber queues and a handful of auto-management policies: a
// high-water-mark per subscriber queue, a hard aggregate cap across all
// subscribers (out-of-memory protection), an error-rate limit that drops
// subscribers whose consumer has stopped keeping up, and a subscriber-count
// ceiling (system overload).
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	queueCapacity  int
	maxTotalQueued int
	maxSubscribers int
	errorLimit     int
	idleBound      time.Duration
}

// NewEventBus creates a bus with the given policy thresholds. Passing 0 for
// queueCapacity selects a per-subscriber capacity of 256; passing 0 for any
// other threshold disables that particular policy.
func NewEventBus(queueCapacity, maxTotalQueued, maxSubscribers, errorLimit int, idleBound time.Duration) *EventBus {
	return &EventBus{
		subscribers:    make(map[string]*Subscriber),
		queueCapacity:  queueCapacity,
		maxTotalQueued: maxTotalQueued,
		maxSubscribers: maxSubscribers,
		errorLimit:     errorLimit,
		idleBound:      idleBound,
	}
}

// DefaultEventBus returns a bus configured with the package's default
// policy thresholds, suitable for production wiring.
func DefaultEventBus() *EventBus {
	return NewEventBus(256, 65536, 1024, 8, 5*time.Minute)
}

// Subscribe registers a new subscriber under the caller-supplied id (spec
// §4.2: "subscribe(id, filter, source) → receiver_endpoint"), with the
// given label and filter (nil matches every event). It returns
// ErrAlreadyExists if id is already registered, or ErrSystemOverload if the
// bus already holds maxSubscribers live subscribers.
func (b *EventBus) Subscribe(id, label string, filter EventFilter) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; exists {
		return nil, newEventBusError(ErrAlreadyExists, "subscriber id %s already registered", id)
	}
	if b.maxSubscribers > 0 && len(b.subscribers) >= b.maxSubscribers {
		return nil, newEventBusError(ErrSystemOverload, "subscriber limit %d reached", b.maxSubscribers)
	}

	capacity := b.queueCapacity
	if capacity <= 0 {
		capacity = 256
	}
	sub := &Subscriber{
		id:      id,
		label:   label,
		filter:  filter,
		queue:   make(chan *Event, capacity),
		created: time.Now().UTC(),
	}
	b.subscribers[sub.id] = sub
	busSubscribers.Set(float64(len(b.subscribers)))
	return sub, nil
}

// SubscribeAuto registers a new subscriber under a freshly minted unique
// id, for callers (such as tests) that don't need a caller-chosen id.
func (b *EventBus) SubscribeAuto(label string, filter EventFilter) (*Subscriber, error) {
	return b.Subscribe(uuid.NewString(), label, filter)
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once; the second call returns ErrSubscriberNotFound.
func (b *EventBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubscribeLocked(id)
}

func (b *EventBus) unsubscribeLocked(id string) error {
	sub, ok := b.subscribers[id]
	if !ok {
		return newEventBusError(ErrSubscriberNotFound, "unknown subscriber id %s", id)
	}
	delete(b.subscribers, id)
	close(sub.queue)
	busSubscribers.Set(float64(len(b.subscribers)))
	return nil
}

// totalQueuedLocked sums the current depth of every subscriber's mailbox.
func (b *EventBus) totalQueuedLocked() int {
	total := 0
	for _, sub := range b.subscribers {
		total += len(sub.queue)
	}
	return total
}

// Publish fans event out to every subscriber whose filter accepts it. A
// subscriber whose queue is already at its high-water-mark counts as one
// failed delivery for this call; once a subscriber accumulates errorLimit
// consecutive failures it is automatically unsubscribed (error-rate
// limiting). If the bus-wide queued total is already at maxTotalQueued
// before this publish, the event is rejected outright with ErrOutOfMemory
// and delivered to no one. Otherwise Publish returns ErrPublishFailed, with
// the failed subscriber ids, only when no matching subscriber received the
// event.
func (b *EventBus) Publish(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()

	if b.maxTotalQueued > 0 {
		if total := b.totalQueuedLocked(); total >= b.maxTotalQueued {
			b.mu.Unlock()
			return newEventBusError(ErrOutOfMemory, "bus queue total %d at capacity %d", total, b.maxTotalQueued)
		}
	}

	var failed []string
	var toDrop []string
	delivered := 0
	for id, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		e := event
		select {
		case sub.queue <- &e:
			delivered++
			sub.mu.Lock()
			sub.errors = 0
			sub.lastSent = e.Timestamp
			sub.mu.Unlock()
		default:
			failed = append(failed, id)
			sub.mu.Lock()
			sub.errors++
			overLimit := b.errorLimit > 0 && sub.errors >= b.errorLimit
			sub.mu.Unlock()
			if overLimit {
				toDrop = append(toDrop, id)
			}
		}
	}
	for _, id := range toDrop {
		b.unsubscribeLocked(id)
	}

	busQueueTotal.Set(float64(b.totalQueuedLocked()))
	b.mu.Unlock()

	if len(failed) > 0 && delivered == 0 {
		return newEventBusErrorWithIDs(failed)
	}
	return nil
}

func newEventBusErrorWithIDs(failedIDs []string) *EventBusError {
	err := newEventBusError(ErrPublishFailed, "")
	err.FailedIDs = failedIDs
	return err
}

// publishSystem is a convenience used by MessageLog and other internal
// producers that don't want to build an Event literal by hand.
func (b *EventBus) publishSystem(kind EventKind, data map[string]interface{}) {
	_ = b.Publish(Event{Kind: kind, Data: data})
}

// SubscriberStatistics returns a snapshot of every live subscriber.
func (b *EventBus) SubscriberStatistics() []SubscriberStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now().UTC()
	out := make([]SubscriberStats, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		sub.mu.Lock()
		stats := SubscriberStats{
			ID:         sub.id,
			Label:      sub.label,
			QueueDepth: len(sub.queue),
			Errors:     sub.errors,
			LastSentAt: sub.lastSent,
		}
		sub.mu.Unlock()
		if !stats.LastSentAt.IsZero() {
			stats.IdleFor = now.Sub(stats.LastSentAt)
		} else {
			stats.IdleFor = now.Sub(sub.created)
		}
		out = append(out, stats)
	}
	return out
}

// AssessHealth reports the bus's current aggregate load.
func (b *EventBus) AssessHealth() BusHealth {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := b.totalQueuedLocked()
	return BusHealth{
		Subscribers:   len(b.subscribers),
		TotalQueued:   total,
		OverThreshold: b.maxTotalQueued > 0 && total >= b.maxTotalQueued,
	}
}

// RemoveStaleSubscribers unsubscribes every subscriber that has not
// received a delivery in longer than the bus's configured idle bound,
// returning how many were removed. An idle bound of 0 disables this policy:
// nothing is removed.
func (b *EventBus) RemoveStaleSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.idleBound <= 0 {
		return 0
	}

	now := time.Now().UTC()
	var stale []string
	for id, sub := range b.subscribers {
		sub.mu.Lock()
		reference := sub.lastSent
		if reference.IsZero() {
			reference = sub.created
		}
		sub.mu.Unlock()
		if now.Sub(reference) > b.idleBound {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		b.unsubscribeLocked(id)
	}
	return len(stale)
}
