package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeprave/repostats/shared"
)

func TestPublishAssignsMonotonicSequence(t *testing.T) {
	log := NewMessageLog(nil)
	pub, err := log.CreatePublisher("producer-a")
	require.NoError(t, err)

	seq1, err := pub.Publish("commit", "one")
	require.NoError(t, err)
	seq2, err := pub.Publish("commit", "two")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
}

func TestCreatePublisherRejectsEmptyID(t *testing.T) {
	log := NewMessageLog(nil)
	_, err := log.CreatePublisher("")
	require.Error(t, err)
	logErr, ok := err.(*LogError)
	require.True(t, ok)
	assert.Equal(t, ErrInvalidConfiguration, logErr.Kind)
}

func TestConsumerOnlySeesMessagesPublishedAfterCreation(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	_, _ = pub.Publish("commit", "before")

	cons := log.CreateConsumer("reader")
	defer cons.Close()

	msg, err := log.ReadOne(cons.ID())
	require.NoError(t, err)
	assert.Nil(t, msg, "consumer created after a publish must not see it")

	_, _ = pub.Publish("commit", "after")
	msg, err = log.ReadOne(cons.ID())
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "after", msg.Payload)
}

func TestReadOneAdvancesPositionAndStops(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	_, _ = pub.Publish("commit", "a")
	_, _ = pub.Publish("commit", "b")

	first, err := log.ReadOne(cons.ID())
	require.NoError(t, err)
	assert.Equal(t, "a", first.Payload)

	second, err := log.ReadOne(cons.ID())
	require.NoError(t, err)
	assert.Equal(t, "b", second.Payload)

	third, err := log.ReadOne(cons.ID())
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestReadBatchRespectsMax(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	for i := 0; i < 5; i++ {
		_, _ = pub.Publish("commit", "x")
	}

	batch, err := log.ReadBatch(cons.ID(), 3)
	require.NoError(t, err)
	assert.Len(t, batch, 3)

	rest, err := log.ReadBatch(cons.ID(), 10)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestReadOneUnknownConsumer(t *testing.T) {
	log := NewMessageLog(nil)
	_, err := log.ReadOne(999)
	require.Error(t, err)
	logErr, ok := err.(*LogError)
	require.True(t, ok)
	assert.Equal(t, ErrConsumerNotFound, logErr.Kind)
}

func TestLagReflectsUnreadCount(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	for i := 0; i < 3; i++ {
		_, _ = pub.Publish("commit", "x")
	}

	lag, err := log.Lag(cons.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lag)

	_, _ = log.ReadOne(cons.ID())
	lag, err = log.Lag(cons.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lag)
}

func TestGarbageCollectionRespectsSlowestConsumer(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")

	fast := log.CreateConsumer("fast")
	slow := log.CreateConsumer("slow")
	defer fast.Close()
	defer slow.Close()

	for i := 0; i < 3; i++ {
		_, _ = pub.Publish("commit", "x")
	}

	// fast reads everything, slow reads nothing.
	for {
		msg, _ := log.ReadOne(fast.ID())
		if msg == nil {
			break
		}
	}

	log.CollectGarbage()

	stats := log.MemoryStats()
	assert.Equal(t, 3, stats.TotalMessages, "messages unread by the slow consumer must survive GC")

	// Once slow catches up, GC can reclaim everything.
	for {
		msg, _ := log.ReadOne(slow.ID())
		if msg == nil {
			break
		}
	}
	log.CollectGarbage()
	stats = log.MemoryStats()
	assert.Equal(t, 0, stats.TotalMessages)
}

func TestGarbageCollectionWithNoConsumersDropsEverything(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	for i := 0; i < 5; i++ {
		_, _ = pub.Publish("commit", "x")
	}

	dropped := log.CollectGarbage()
	assert.Equal(t, 5, dropped)
	assert.Equal(t, 0, log.MemoryStats().TotalMessages)
}

func TestReadOneReturnsSequenceOutOfBoundsWhenPositionPrecedesBase(t *testing.T) {
	log := NewMessageLog(nil)
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	// Directly corrupt the bookkeeping to exercise the defensive guard: this
	// can't happen through the public API (GC never drops past a live
	// consumer's position), so it is reproduced as a white-box test.
	log.mu.Lock()
	log.consumers[cons.ID()].position = 0
	log.baseSequence = 10
	log.mu.Unlock()

	_, err := log.ReadOne(cons.ID())
	require.Error(t, err)
	assert.True(t, IsSequenceOutOfBounds(err))
}

func TestProducerCountTracksRetainedMessages(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	_, err := log.ProducerCount("producer-a")
	require.Error(t, err)

	_, _ = pub.Publish("commit", "x")
	n, err := log.ProducerCount("producer-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDetectStaleConsumersReportsIdleRegardlessOfLag(t *testing.T) {
	log := NewMessageLog(nil)
	cons := log.CreateConsumer("idle")
	defer cons.Close()

	log.mu.Lock()
	log.consumers[cons.ID()].lastReadAt = time.Now().Add(-time.Hour)
	log.mu.Unlock()

	stale := log.DetectStaleConsumers(time.Minute)
	require.Len(t, stale, 1)
	assert.Equal(t, uint64(0), stale[0].Lag)
}

func TestCleanupStaleConsumersOnlyRemovesLaggingOnes(t *testing.T) {
	log := NewMessageLog(nil)
	log.SetIdleBound(time.Millisecond)
	pub, _ := log.CreatePublisher("producer-a")

	idleCaughtUp := log.CreateConsumer("idle-caught-up")
	idleLagging := log.CreateConsumer("idle-lagging")

	_, _ = pub.Publish("commit", "x")
	_, _ = log.ReadOne(idleCaughtUp.ID()) // catches up, lag 0

	log.mu.Lock()
	log.consumers[idleCaughtUp.ID()].lastReadAt = time.Now().Add(-time.Hour)
	log.consumers[idleLagging.ID()].lastReadAt = time.Now().Add(-time.Hour)
	log.mu.Unlock()

	removed := log.CleanupStaleConsumers(0)
	assert.Equal(t, 1, removed)

	_, err := log.ReadOne(idleCaughtUp.ID())
	assert.NoError(t, err, "caught-up idle consumer must not be removed")
	_, err = log.ReadOne(idleLagging.ID())
	assert.Error(t, err, "lagging idle consumer must have been removed")
}

func TestReadOneBlockingWaitsForAPublish(t *testing.T) {
	log := NewMessageLog(nil)
	pub, _ := log.CreatePublisher("producer-a")
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	go func() {
		time.Sleep(5 * time.Millisecond)
		_, _ = pub.Publish("commit", "x")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := cons.ReadOneBlocking(ctx, shared.SpinPriorityRealtime)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "x", msg.Payload)
}

func TestReadOneBlockingReturnsWhenContextCancelled(t *testing.T) {
	log := NewMessageLog(nil)
	cons := log.CreateConsumer("reader")
	defer cons.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := cons.ReadOneBlocking(ctx, shared.SpinPriorityRealtime)
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestSetMemoryThresholdEmitsLowAndNormalEvents(t *testing.T) {
	bus := NewEventBus(16, 0, 0, 0, time.Hour)
	sub, err := bus.SubscribeAuto("watcher", func(e Event) bool {
		return e.Kind == EventMemoryLow || e.Kind == EventMemoryNormal
	})
	require.NoError(t, err)
	defer bus.Unsubscribe(sub.ID())

	log := NewMessageLog(bus)
	log.SetMemoryThresholdBytes(1) // smallest possible message will exceed this

	// A live consumer that has not read keeps the message retained, so the
	// log is still over the threshold after publish's collection pass.
	cons := log.CreateConsumer("reader")

	pub, _ := log.CreatePublisher("producer-a")
	_, _ = pub.Publish("commit", "x")

	select {
	case evt := <-sub.Events():
		assert.Equal(t, EventMemoryLow, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a MemoryLow event")
	}

	// Without consumers the next publish collects everything, bringing the
	// log back under the threshold.
	cons.Close()
	_, _ = pub.Publish("commit", "y")

	select {
	case evt := <-sub.Events():
		assert.Equal(t, EventMemoryNormal, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a MemoryNormal event")
	}
}
