package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceRegistryConstructsOnce(t *testing.T) {
	reg := NewServiceRegistry()

	bus1 := reg.EventBus()
	bus2 := reg.EventBus()
	assert.Same(t, bus1, bus2)

	log1 := reg.MessageLog()
	log2 := reg.MessageLog()
	assert.Same(t, log1, log2)

	engine1 := reg.PluginEngine()
	engine2 := reg.PluginEngine()
	assert.Same(t, engine1, engine2)
}

func TestServiceRegistryWiresSharedEventBus(t *testing.T) {
	reg := NewServiceRegistry()
	bus := reg.EventBus()

	sub, err := bus.SubscribeAuto("watcher", func(e Event) bool { return e.Kind == EventQueueMessageAdded })
	require.NoError(t, err)
	defer bus.Unsubscribe(sub.ID())

	log := reg.MessageLog()
	pub, err := log.CreatePublisher("producer-a")
	require.NoError(t, err)
	_, err = pub.Publish("commit", "x")
	require.NoError(t, err)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, EventQueueMessageAdded, evt.Kind)
	default:
		t.Fatal("message log should publish onto the registry's shared event bus")
	}
}

func TestServiceRegistryConcurrentAccessConstructsOnlyOnce(t *testing.T) {
	reg := NewServiceRegistry()
	const n = 50

	var wg sync.WaitGroup
	buses := make([]*EventBus, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buses[i] = reg.EventBus()
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, buses[0], buses[i])
	}
}

func TestGuardPoisonsAfterPanicAndBlocksFurtherUse(t *testing.T) {
	g := &guard{}

	func() {
		defer func() { recover() }()
		g.with(func() { panic("boom") })
	}()

	assert.Panics(t, func() {
		g.with(func() {})
	}, "a poisoned guard must panic on every subsequent call")
}

func TestGuardAllowsNormalSequentialUse(t *testing.T) {
	g := &guard{}
	calls := 0
	g.with(func() { calls++ })
	g.with(func() { calls++ })
	assert.Equal(t, 2, calls)
}
