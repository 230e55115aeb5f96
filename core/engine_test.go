package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlugin is a minimal Plugin used to exercise the engine without
// depending on any of the reference plugins' external connections.
type fakePlugin struct {
	name             string
	functions        []PluginFunction
	typ              PluginType
	requires         ScanRequirements
	apiVersion       int
	initErr          error
	parseErr         error
	shutdownErr      error
	shutdownCalled   bool
	initializeCalled bool
}

func (p *fakePlugin) Name() string               { return p.name }
func (p *fakePlugin) Functions() []PluginFunction { return p.functions }
func (p *fakePlugin) Type() PluginType            { return p.typ }
func (p *fakePlugin) Requires() ScanRequirements  { return p.requires }
func (p *fakePlugin) PluginAPIVersion() int       { return p.apiVersion }
func (p *fakePlugin) Initialize(cfg *PluginConfig) error {
	p.initializeCalled = true
	return p.initErr
}
func (p *fakePlugin) ParseArguments(args []string) error { return p.parseErr }
func (p *fakePlugin) StartConsuming(ctx context.Context, messages <-chan ScanMessage) error {
	return nil
}
func (p *fakePlugin) Shutdown() error {
	p.shutdownCalled = true
	return p.shutdownErr
}

func fn(name string, aliases ...string) PluginFunction {
	return PluginFunction{Name: name, Aliases: aliases}
}

func newFakeDescriptor(name string, fns []PluginFunction, requires ScanRequirements) PluginDescriptor {
	return PluginDescriptor{Name: name, Functions: fns, Type: PluginTypeProcessing, Requires: requires}
}

func TestFindByCommandFirstRegisteredWins(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	first := &fakePlugin{name: "first", functions: []PluginFunction{fn("dump")}, apiVersion: BaseAPIVersion}
	second := &fakePlugin{name: "second", functions: []PluginFunction{fn("dump")}, apiVersion: BaseAPIVersion}

	engine.RegisterBuiltin(newFakeDescriptor("first", first.functions, 0), func() Plugin { return first })
	engine.RegisterBuiltin(newFakeDescriptor("second", second.functions, 0), func() Plugin { return second })

	desc, functionName, ok := engine.FindByCommand("dump")
	require.True(t, ok)
	assert.Equal(t, "first", desc.Name)
	assert.Equal(t, "dump", functionName)
}

func TestFindByCommandResolvesAliasToCanonicalName(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	plugin := &fakePlugin{name: "analyser", functions: []PluginFunction{fn("analyse", "analyze")}, apiVersion: BaseAPIVersion}
	engine.RegisterBuiltin(newFakeDescriptor("analyser", plugin.functions, 0), func() Plugin { return plugin })

	desc, functionName, ok := engine.FindByCommand("analyze")
	require.True(t, ok)
	assert.Equal(t, "analyser", desc.Name)
	assert.Equal(t, "analyse", functionName, "function_name must be the canonical name, never the alias")
}

func TestRegisterBuiltinReplacesWithoutReordering(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	a := &fakePlugin{name: "a", functions: []PluginFunction{fn("a")}, apiVersion: BaseAPIVersion}
	b := &fakePlugin{name: "b", functions: []PluginFunction{fn("b")}, apiVersion: BaseAPIVersion}

	engine.RegisterBuiltin(newFakeDescriptor("a", a.functions, 0), func() Plugin { return a })
	engine.RegisterBuiltin(newFakeDescriptor("b", b.functions, 0), func() Plugin { return b })
	engine.RegisterBuiltin(newFakeDescriptor("a", []PluginFunction{fn("a"), fn("aa")}, 0), func() Plugin { return a })

	descs := engine.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "a", descs[0].Name)
	assert.Equal(t, []PluginFunction{fn("a"), fn("aa")}, descs[0].Functions)
	assert.Equal(t, "b", descs[1].Name)
}

func TestRegisterExternalRejectsAPIVersionMismatch(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	bad := &fakePlugin{name: "bad", functions: []PluginFunction{fn("bad")}, apiVersion: BaseAPIVersion + 1}

	err := engine.RegisterExternal(newFakeDescriptor("bad", bad.functions, 0), bad)
	require.Error(t, err)
	pluginErr, ok := err.(*PluginError)
	require.True(t, ok)
	assert.Equal(t, ErrAPIVersionMismatch, pluginErr.Kind)
}

func TestSegmentCommandsSplitsOnKnownCommands(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	engine.RegisterBuiltin(newFakeDescriptor("dump", []PluginFunction{fn("dump")}, 0), func() Plugin { return &fakePlugin{} })
	engine.RegisterBuiltin(newFakeDescriptor("notify", []PluginFunction{fn("notify")}, 0), func() Plugin { return &fakePlugin{} })

	segments, err := engine.SegmentCommands([]string{"dump", "--format", "json", "notify", "--to", "me"})
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, "dump", segments[0].Command)
	assert.Equal(t, []string{"--format", "json"}, segments[0].Args)
	assert.Equal(t, "notify", segments[1].Command)
	assert.Equal(t, []string{"--to", "me"}, segments[1].Args)
}

func TestSegmentCommandsRejectsUnknownLeadingToken(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	_, err := engine.SegmentCommands([]string{"bogus", "--x"})
	require.Error(t, err)
	pluginErr, ok := err.(*PluginError)
	require.True(t, ok)
	assert.Equal(t, ErrPluginNotFound, pluginErr.Kind)
}

func TestActivateUnionsNormalizedRequirements(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	content := &fakePlugin{name: "content", functions: []PluginFunction{fn("content")}, apiVersion: BaseAPIVersion, requires: RequireFileContent}
	engine.RegisterBuiltin(newFakeDescriptor("content", content.functions, 0), func() Plugin { return content })

	segments := []CommandSegment{{Command: "content"}}
	activated, requires, err := engine.Activate(segments, nil, false)
	require.NoError(t, err)
	require.Len(t, activated, 1)
	assert.True(t, requires.Has(RequireFileContent))
	assert.True(t, requires.Has(RequireFileChanges))
	assert.True(t, requires.Has(RequireCommits))
	assert.False(t, requires.Has(RequireHistory))
}

func TestActivateRecordsCanonicalFunctionNameEvenWhenInvokedByAlias(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	analyser := &fakePlugin{name: "analyser", functions: []PluginFunction{fn("analyse", "analyze")}, apiVersion: BaseAPIVersion}
	engine.RegisterBuiltin(newFakeDescriptor("analyser", analyser.functions, 0), func() Plugin { return analyser })

	segments := []CommandSegment{{Command: "analyze"}}
	activated, _, err := engine.Activate(segments, nil, false)
	require.NoError(t, err)
	require.Len(t, activated, 1)
	assert.Equal(t, "analyse", activated[0].FunctionName)
}

func TestActivateAllocatesConsumerOnlyForProcessingPlugins(t *testing.T) {
	log := NewMessageLog(nil)
	bus := NewEventBus(4, 0, 0, 0, 0)
	engine := NewPluginEngine(bus, log)

	proc := &fakePlugin{name: "proc", functions: []PluginFunction{fn("proc")}, apiVersion: BaseAPIVersion, typ: PluginTypeProcessing}
	out := &fakePlugin{name: "out", functions: []PluginFunction{fn("out")}, apiVersion: BaseAPIVersion, typ: PluginTypeOutput}
	engine.RegisterBuiltin(PluginDescriptor{Name: "proc", Functions: proc.functions, Type: PluginTypeProcessing}, func() Plugin { return proc })
	engine.RegisterBuiltin(PluginDescriptor{Name: "out", Functions: out.functions, Type: PluginTypeOutput}, func() Plugin { return out })

	segments := []CommandSegment{{Command: "proc"}, {Command: "out"}}
	activated, _, err := engine.Activate(segments, nil, false)
	require.NoError(t, err)
	require.Len(t, activated, 2)

	assert.NotNil(t, activated[0].Consumer, "processing plugin must receive a log consumer")
	assert.NotNil(t, activated[0].Subscriber, "every active plugin receives an event bus subscription")

	assert.Nil(t, activated[1].Consumer, "output plugin must not receive a log consumer")
	assert.NotNil(t, activated[1].Subscriber, "every active plugin receives an event bus subscription")

	require.NoError(t, engine.Shutdown())
}

func TestActivateRollsBackOnLaterFailure(t *testing.T) {
	engine := NewPluginEngine(nil, nil)
	good := &fakePlugin{name: "good", functions: []PluginFunction{fn("good")}, apiVersion: BaseAPIVersion}
	bad := &fakePlugin{name: "bad", functions: []PluginFunction{fn("bad")}, apiVersion: BaseAPIVersion, initErr: assertError("boom")}

	engine.RegisterBuiltin(newFakeDescriptor("good", good.functions, 0), func() Plugin { return good })
	engine.RegisterBuiltin(newFakeDescriptor("bad", bad.functions, 0), func() Plugin { return bad })

	segments := []CommandSegment{{Command: "good"}, {Command: "bad"}}
	_, _, err := engine.Activate(segments, nil, false)
	require.Error(t, err)
	assert.True(t, good.shutdownCalled, "successfully activated plugin must be rolled back on later failure")
}

func TestShutdownTearsDownEveryActivePlugin(t *testing.T) {
	engine := NewPluginEngine(nil, nil)

	first := &fakePlugin{name: "first", functions: []PluginFunction{fn("first")}, apiVersion: BaseAPIVersion}
	second := &fakePlugin{name: "second", functions: []PluginFunction{fn("second")}, apiVersion: BaseAPIVersion}
	engine.RegisterBuiltin(newFakeDescriptor("first", first.functions, 0), func() Plugin { return first })
	engine.RegisterBuiltin(newFakeDescriptor("second", second.functions, 0), func() Plugin { return second })

	segments := []CommandSegment{{Command: "first"}, {Command: "second"}}
	_, _, err := engine.Activate(segments, nil, false)
	require.NoError(t, err)

	err = engine.Shutdown()
	require.NoError(t, err)
	assert.True(t, first.shutdownCalled)
	assert.True(t, second.shutdownCalled)
}

// assertError is a tiny error helper so tests don't need to import "errors"
// just to build a sentinel failure.
type assertError string

func (e assertError) Error() string { return string(e) }
