package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeprave/repostats/core"
)

type stubPlugin struct {
	name         string
	consumeErr   error
	consumeCalls int
}

func (p *stubPlugin) Name() string                            { return p.name }
func (p *stubPlugin) Functions() []core.PluginFunction        { return []core.PluginFunction{{Name: p.name}} }
func (p *stubPlugin) Type() core.PluginType                   { return core.PluginTypeOutput }
func (p *stubPlugin) Requires() core.ScanRequirements         { return core.RequireCommits }
func (p *stubPlugin) PluginAPIVersion() int                   { return core.BaseAPIVersion }
func (p *stubPlugin) Initialize(cfg *core.PluginConfig) error { return nil }
func (p *stubPlugin) ParseArguments(args []string) error      { return nil }
func (p *stubPlugin) StartConsuming(ctx context.Context, messages <-chan core.ScanMessage) error {
	p.consumeCalls++
	for range messages {
	}
	return p.consumeErr
}
func (p *stubPlugin) Shutdown() error { return nil }

func newTestRegistry(plugin *stubPlugin) *core.ServiceRegistry {
	registry := core.NewServiceRegistry()
	registry.PluginEngine().RegisterBuiltin(
		core.PluginDescriptor{Name: plugin.name, Functions: plugin.Functions(), Type: plugin.Type()},
		func() core.Plugin { return plugin },
	)
	return registry
}

func TestCoordinatorActivateRequiresAtLeastOneSegment(t *testing.T) {
	registry := newTestRegistry(&stubPlugin{name: "noop"})
	co := NewCoordinator(registry, &options{}, nil)

	err := co.Activate(nil)
	require.Error(t, err)
}

func TestCoordinatorActivateSucceeds(t *testing.T) {
	plugin := &stubPlugin{name: "kafkaoutput"}
	registry := newTestRegistry(plugin)
	co := NewCoordinator(registry, &options{}, nil)

	err := co.Activate([]string{"kafkaoutput"})
	require.NoError(t, err)
	assert.Len(t, co.activated, 1)
	assert.True(t, co.requires.Has(core.RequireCommits))
}

func TestCoordinatorRunDrivesEveryActivatedPlugin(t *testing.T) {
	plugin := &stubPlugin{name: "kafkaoutput"}
	registry := newTestRegistry(plugin)
	co := NewCoordinator(registry, &options{}, nil)
	require.NoError(t, co.Activate([]string{"kafkaoutput"}))

	err := co.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, plugin.consumeCalls)
}

func TestCoordinatorShutdownNoOpsBeforeActivation(t *testing.T) {
	registry := newTestRegistry(&stubPlugin{name: "noop"})
	co := NewCoordinator(registry, &options{}, nil)
	assert.NoError(t, co.Shutdown())
}

func TestCoordinatorReloadWithoutConfigFileIsNoOp(t *testing.T) {
	registry := newTestRegistry(&stubPlugin{name: "noop"})
	co := NewCoordinator(registry, &options{}, nil)
	before := co.config
	require.NoError(t, co.Reload())
	assert.Same(t, before, co.config)
}
