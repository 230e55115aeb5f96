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
	"context"
	"sync"
	"time"

	"github.com/deeprave/repostats/shared"
)

// messageOverhead approximates the fixed per-message bookkeeping cost (the
// uint64 sequence, the timestamp, slice/map entries) added on top of the
// variable-length string fields when computing memory_stats.total_bytes.
const messageOverhead = 48

// consumerState is the log's private bookkeeping for a registered consumer.
// Only MessageLog methods touch it, always under mu.
type consumerState struct {
	id         uint64
	label      string
	position   uint64
	lastReadAt time.Time
}

// StaleConsumer is one entry of a DetectStaleConsumers report.
type StaleConsumer struct {
	ConsumerID uint64
	Lag        uint64
	IdleFor    time.Duration
}

// MemoryStats is a snapshot returned by MessageLog.MemoryStats.
type MemoryStats struct {
	TotalMessages    int
	TotalBytes       uint64
	BaseSequence     uint64
	NextSequence     uint64
	PerProducerCount map[string]int
}

// MessageLog is a multi-consumer, append-only, sequenced log. A single
// writer critical section guards Publish and garbage collection; readers
// (ReadOne/ReadBatch) only ever touch their own consumer's position, but
// since they advance it they take the log's write lock, so reads are
// serialized with each other and with Publish.
type MessageLog struct {
	mu sync.RWMutex

	messages     []*Message // messages[i] has Sequence == baseSequence+i
	baseSequence uint64
	nextSequence uint64

	consumers      map[uint64]*consumerState
	nextConsumerID uint64

	producerCounts map[string]int
	totalBytes     uint64

	thresholdBytes   uint64
	wasOverThreshold bool

	idleBound time.Duration

	bus *EventBus
}

// NewMessageLog creates an empty log. bus may be nil, in which case the log
// never emits Queue/MemoryLow/MemoryNormal events (useful for unit tests
// that only exercise the log in isolation).
func NewMessageLog(bus *EventBus) *MessageLog {
	return &MessageLog{
		consumers:      make(map[uint64]*consumerState),
		nextConsumerID: 1,
		nextSequence:   1,
		baseSequence:   1,
		producerCounts: make(map[string]int),
		idleBound:      10 * time.Minute,
		bus:            bus,
	}
}

// SetMemoryThresholdBytes configures the soft cap that drives garbage
// collection and pressure reporting: Publish runs a collection pass only
// while the retained size exceeds it. A threshold of 0 disables both the
// publish-triggered pass and the MemoryLow/MemoryNormal signal; CollectGarbage
// and consumer removal still collect by consumer watermark.
func (l *MessageLog) SetMemoryThresholdBytes(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.thresholdBytes = n
}

// SetIdleBound configures the idle duration used by CleanupStaleConsumers
// alongside its lag threshold argument.
func (l *MessageLog) SetIdleBound(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.idleBound = d
}

// Publisher is a lightweight handle bound to one producer id. It carries no
// state of its own; every call goes straight to the owning log.
type Publisher struct {
	producerID string
	log        *MessageLog
}

// CreatePublisher returns a handle producing messages tagged with producerID.
// producerID must be non-empty.
func (l *MessageLog) CreatePublisher(producerID string) (*Publisher, error) {
	if producerID == "" {
		return nil, newLogError(ErrInvalidConfiguration, "producer id must not be empty")
	}
	return &Publisher{producerID: producerID, log: l}, nil
}

// Publish appends messageType/payload as a new Message, assigning it the
// next sequence number and the current time. It is the log's single-writer
// critical section: sequence assignment, and GC when the log is over its
// memory threshold, both happen here under mu.
func (p *Publisher) Publish(messageType, payload string) (uint64, error) {
	return p.log.publish(p.producerID, messageType, payload)
}

func (l *MessageLog) publish(producerID, messageType, payload string) (uint64, error) {
	l.mu.Lock()

	msg := newMessage(producerID, messageType, payload)
	msg.Sequence = l.nextSequence
	msg.Timestamp = time.Now().UTC()
	l.nextSequence++

	l.messages = append(l.messages, &msg)
	l.producerCounts[producerID]++
	size := approxMessageSize(&msg)
	l.totalBytes += size
	messagesPublished.WithLabelValues(producerID).Inc()

	dropped := 0
	if l.thresholdBytes > 0 && l.totalBytes > l.thresholdBytes {
		dropped = l.collectGarbageLocked()
	}
	if dropped > 0 {
		logGCDropped.Add(float64(dropped))
	}
	logTotalBytes.Set(float64(l.totalBytes))

	overThreshold := l.thresholdBytes > 0 && l.totalBytes > l.thresholdBytes
	becameOver := overThreshold && !l.wasOverThreshold
	becameUnder := !overThreshold && l.wasOverThreshold
	l.wasOverThreshold = overThreshold
	total := l.totalBytes
	seq := msg.Sequence

	l.mu.Unlock()

	if l.bus != nil {
		l.bus.publishSystem(EventQueueMessageAdded, map[string]interface{}{
			"producer_id": producerID,
			"sequence":    seq,
		})
		if becameOver {
			l.bus.publishSystem(EventMemoryLow, map[string]interface{}{"total_bytes": total})
		} else if becameUnder {
			l.bus.publishSystem(EventMemoryNormal, map[string]interface{}{"total_bytes": total})
		}
	}

	return seq, nil
}

// ConsumerHandle is returned by CreateConsumer. Callers must Close it when
// done reading so the log can reclaim messages it was holding back for them;
// Go has no destructors, so unlike the handle's origin in the source model
// this is an explicit step rather than an implicit one.
type ConsumerHandle struct {
	id  uint64
	log *MessageLog
}

// ID returns the consumer's id, stable for its lifetime.
func (c *ConsumerHandle) ID() uint64 { return c.id }

// ReadOneBlocking polls ReadOne until a message arrives, ctx is cancelled,
// or ReadOne returns an error. The log itself never blocks a reader; a
// caught-up consumer that wants to wait does so here, backing off with a
// shared.Spinner rather than busy-looping at full CPU.
func (c *ConsumerHandle) ReadOneBlocking(ctx context.Context, priority shared.SpinPriority) (*Message, error) {
	spin := shared.NewSpinner(priority)
	for {
		msg, err := c.log.ReadOne(c.id)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		spin.Yield()
	}
}

// Close unregisters the consumer, allowing garbage collection to proceed
// past messages it had not yet read.
func (c *ConsumerHandle) Close() {
	c.log.removeConsumer(c.id)
}

// CreateConsumer registers a new consumer starting at the log's current
// next-sequence position (it only sees messages published after creation).
func (l *MessageLog) CreateConsumer(label string) *ConsumerHandle {
	l.mu.Lock()
	id := l.nextConsumerID
	l.nextConsumerID++
	l.consumers[id] = &consumerState{
		id:         id,
		label:      label,
		position:   l.nextSequence,
		lastReadAt: time.Now().UTC(),
	}
	l.mu.Unlock()
	return &ConsumerHandle{id: id, log: l}
}

func (l *MessageLog) removeConsumer(id uint64) {
	l.mu.Lock()
	delete(l.consumers, id)
	l.collectGarbageLocked()
	l.mu.Unlock()
}

// ReadOne returns the next unread message for the consumer, or nil if the
// consumer is caught up. It returns an error if the consumer id is unknown
// or (defensively; see collectGarbageLocked) if its position has somehow
// fallen behind base_sequence.
func (l *MessageLog) ReadOne(consumerID uint64) (*Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, ok := l.consumers[consumerID]
	if !ok {
		return nil, newLogError(ErrConsumerNotFound, "unknown consumer id %d", consumerID)
	}
	if cs.position < l.baseSequence {
		return nil, newLogError(ErrSequenceOutOfBounds, "consumer %d position %d is before base sequence %d", consumerID, cs.position, l.baseSequence)
	}

	idx := cs.position - l.baseSequence
	if idx >= uint64(len(l.messages)) {
		cs.lastReadAt = time.Now().UTC()
		return nil, nil
	}

	msg := l.messages[idx]
	cs.position++
	cs.lastReadAt = time.Now().UTC()
	return msg, nil
}

// ReadBatch returns up to max unread messages for the consumer.
func (l *MessageLog) ReadBatch(consumerID uint64, max int) ([]*Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cs, ok := l.consumers[consumerID]
	if !ok {
		return nil, newLogError(ErrConsumerNotFound, "unknown consumer id %d", consumerID)
	}
	if cs.position < l.baseSequence {
		return nil, newLogError(ErrSequenceOutOfBounds, "consumer %d position %d is before base sequence %d", consumerID, cs.position, l.baseSequence)
	}

	idx := cs.position - l.baseSequence
	out := make([]*Message, 0, max)
	for len(out) < max && idx < uint64(len(l.messages)) {
		out = append(out, l.messages[idx])
		idx++
		cs.position++
	}
	cs.lastReadAt = time.Now().UTC()
	return out, nil
}

// Lag returns how many unread messages remain for the consumer.
func (l *MessageLog) Lag(consumerID uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cs, ok := l.consumers[consumerID]
	if !ok {
		return 0, newLogError(ErrConsumerNotFound, "unknown consumer id %d", consumerID)
	}
	if l.nextSequence <= cs.position {
		return 0, nil
	}
	return l.nextSequence - cs.position, nil
}

// ProducerCount returns how many currently-retained messages came from the
// given producer id, or ErrProducerNotFound if none are retained (either
// the producer never published or every such message has been collected).
func (l *MessageLog) ProducerCount(producerID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n, ok := l.producerCounts[producerID]
	if !ok || n == 0 {
		return 0, newLogError(ErrProducerNotFound, "no retained messages from producer %q", producerID)
	}
	return n, nil
}

// MemoryStats returns a point-in-time snapshot of log size.
func (l *MessageLog) MemoryStats() MemoryStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[string]int, len(l.producerCounts))
	for k, v := range l.producerCounts {
		if v > 0 {
			counts[k] = v
		}
	}
	return MemoryStats{
		TotalMessages:    len(l.messages),
		TotalBytes:       l.totalBytes,
		BaseSequence:     l.baseSequence,
		NextSequence:     l.nextSequence,
		PerProducerCount: counts,
	}
}

// CollectGarbage runs the watermark-based collection pass on demand and
// returns how many messages were dropped. Publish (while over the memory
// threshold) and consumer removal already trigger this internally; exposing
// it lets callers (and tests)
// force a pass, e.g. after changing the memory threshold.
func (l *MessageLog) CollectGarbage() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectGarbageLocked()
}

// collectGarbageLocked drops every message whose sequence is less than the
// minimum position among currently live consumers (or everything, if there
// are no live consumers). It must only be called with mu held for writing.
func (l *MessageLog) collectGarbageLocked() int {
	minPos := l.nextSequence
	for _, cs := range l.consumers {
		if cs.position < minPos {
			minPos = cs.position
		}
	}
	if minPos <= l.baseSequence {
		return 0
	}

	drop := minPos - l.baseSequence
	if drop > uint64(len(l.messages)) {
		drop = uint64(len(l.messages))
	}
	for i := uint64(0); i < drop; i++ {
		msg := l.messages[i]
		l.producerCounts[msg.ProducerID]--
		l.totalBytes -= approxMessageSize(msg)
	}
	l.messages = l.messages[drop:]
	l.baseSequence += drop

	return int(drop)
}

// DetectStaleConsumers reports every consumer that has not read for longer
// than idle, regardless of how far behind it is — purely informational.
func (l *MessageLog) DetectStaleConsumers(idle time.Duration) []StaleConsumer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := time.Now().UTC()
	var out []StaleConsumer
	for _, cs := range l.consumers {
		idleFor := now.Sub(cs.lastReadAt)
		if idleFor < idle {
			continue
		}
		lag := uint64(0)
		if l.nextSequence > cs.position {
			lag = l.nextSequence - cs.position
		}
		out = append(out, StaleConsumer{ConsumerID: cs.id, Lag: lag, IdleFor: idleFor})
	}
	return out
}

// CleanupStaleConsumers removes every consumer whose lag exceeds
// lagThreshold and whose idle time exceeds the log's configured idle bound
// (see SetIdleBound), then runs garbage collection. It returns the number
// of consumers removed. A consumer idle for a long time but fully caught up
// (lag 0) is never removed by this call — see DetectStaleConsumers.
func (l *MessageLog) CleanupStaleConsumers(lagThreshold uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	removed := 0
	for id, cs := range l.consumers {
		lag := uint64(0)
		if l.nextSequence > cs.position {
			lag = l.nextSequence - cs.position
		}
		if lag > lagThreshold && now.Sub(cs.lastReadAt) > l.idleBound {
			delete(l.consumers, id)
			removed++
		}
	}
	if removed > 0 {
		l.collectGarbageLocked()
	}
	return removed
}

func approxMessageSize(msg *Message) uint64 {
	return uint64(len(msg.ProducerID)+len(msg.MessageType)+len(msg.Payload)) + messageOverhead
}
