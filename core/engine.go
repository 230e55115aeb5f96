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
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trivago/tgo"

	"github.com/deeprave/repostats/shared"
)

// CommandSegment is one plugin invocation parsed out of the CLI's trailing
// plugin-command suffix: a recognized command name and the run of
// arguments following it, up to (but not including) the next recognized
// command.
type CommandSegment struct {
	Command string
	Args    []string
}

// PluginEngine discovers, activates, and shuts down plugins. Registration
// order is preserved and is the engine's tie-break rule: if two plugins
// list the same command (by name or alias) under Functions, FindByCommand
// returns whichever was registered first. This is an explicit, stable
// contract, not incidental behavior.
type PluginEngine struct {
	mu           sync.RWMutex
	descriptors  []PluginDescriptor
	factories    *shared.TypeRegistry
	active       []*ActivePlugin
	bus          *EventBus
	log          *MessageLog
	shutdownWait time.Duration
}

// NewPluginEngine creates an engine with no registered plugins. bus and log
// may be nil for engines used in isolation (e.g. unit tests); a nil log
// means Processing plugins are activated without a Log consumer, and a nil
// bus means no plugin is subscribed to the Event Bus.
func NewPluginEngine(bus *EventBus, log *MessageLog) *PluginEngine {
	return &PluginEngine{
		factories:    shared.NewTypeRegistry(),
		bus:          bus,
		log:          log,
		shutdownWait: 10 * time.Second,
	}
}

// newPluginInstance resolves name's registered factory and type-asserts its
// product back to Plugin; factories are always registered through
// registerFactory, so a type mismatch here would be an engine bug, not a
// caller error.
func (e *PluginEngine) newPluginInstance(name string) Plugin {
	v, err := e.factories.New(name)
	if err != nil {
		panic(fmt.Sprintf("plugin engine: %v", err))
	}
	return v.(Plugin)
}

func (e *PluginEngine) registerFactory(name string, factory func() Plugin) {
	e.factories.Register(name, func() interface{} { return factory() })
}

// RegisterBuiltin adds a compiled-in plugin, constructed on demand by
// factory at activation time. Re-registering the same descriptor name
// replaces its factory but keeps its original position in the registration
// order (so FindByCommand's first-registered-wins rule is unaffected by
// re-registration).
func (e *PluginEngine) RegisterBuiltin(desc PluginDescriptor, factory func() Plugin) {
	e.mu.Lock()
	defer e.mu.Unlock()

	desc.Builtin = true
	for i, d := range e.descriptors {
		if d.Name == desc.Name {
			e.descriptors[i] = desc
			e.registerFactory(desc.Name, factory)
			return
		}
	}
	e.descriptors = append(e.descriptors, desc)
	e.registerFactory(desc.Name, factory)
}

// RegisterExternal adds a descriptor for a dynamically discovered plugin
// whose instance is supplied directly (already loaded from its shared
// library by the caller), rather than built from a factory.
func (e *PluginEngine) RegisterExternal(desc PluginDescriptor, instance Plugin) error {
	if instance.PluginAPIVersion() != BaseAPIVersion {
		return newPluginError(ErrAPIVersionMismatch, "plugin %s reports API version %d, engine requires %d",
			desc.Name, instance.PluginAPIVersion(), BaseAPIVersion)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	desc.Builtin = false
	e.descriptors = append(e.descriptors, desc)
	e.registerFactory(desc.Name, func() Plugin { return instance })
	return nil
}

// Descriptors returns every registered plugin's descriptor, in
// registration order, for the --plugins discovery report.
func (e *PluginEngine) Descriptors() []PluginDescriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]PluginDescriptor, len(e.descriptors))
	copy(out, e.descriptors)
	return out
}

// FindByCommand resolves a command segment (by function name or alias) to
// the plugin descriptor that claims it and that function's canonical name,
// first-registered wins. The returned name is always the function's
// primary Name, never the alias command was given as (spec §4.3).
func (e *PluginEngine) FindByCommand(command string) (desc PluginDescriptor, functionName string, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range e.descriptors {
		for _, fn := range d.Functions {
			if fn.matches(command) {
				return d, fn.Name, true
			}
		}
	}
	return PluginDescriptor{}, "", false
}

// SegmentCommands walks a flat argument slice left to right, splitting it
// into CommandSegments: a token is a new segment's command if it names a
// registered plugin function, otherwise it is appended as an argument of
// the current segment. The first token must resolve to a known command.
func (e *PluginEngine) SegmentCommands(args []string) ([]CommandSegment, error) {
	var segments []CommandSegment
	for _, tok := range args {
		if _, _, ok := e.FindByCommand(tok); ok {
			segments = append(segments, CommandSegment{Command: tok})
			continue
		}
		if len(segments) == 0 {
			return nil, newPluginError(ErrPluginNotFound, "unrecognized command %q", tok)
		}
		last := &segments[len(segments)-1]
		last.Args = append(last.Args, tok)
	}
	return segments, nil
}

// Activate runs the activation sequence for a set of resolved command
// segments, following spec §4.3 in order for each segment:
//  1. resolve the descriptor and the segment's canonical function name
//     (never an alias);
//  2. construct the plugin instance;
//  3. for a Processing plugin, allocate it a Log consumer (Output plugins
//     receive no consumer);
//  4. subscribe it to the Event Bus, regardless of type;
//  5. Initialize it with a PluginConfig built from useColors plus the
//     plugin's own section of settings, then ParseArguments its segment's trailing
//     tokens;
//  6. record it active and union its normalized requirements into the
//     aggregate ScanRequirements every activated plugin will receive from
//     the scanner.
//
// Activation stops at the first failure; plugins already activated in this
// call are rolled back via Shutdown.
func (e *PluginEngine) Activate(segments []CommandSegment, settings map[string]ConfigKeyValueMap, useColors bool) ([]*ActivePlugin, ScanRequirements, error) {
	var activated []*ActivePlugin
	var requires ScanRequirements

	for _, seg := range segments {
		desc, functionName, ok := e.FindByCommand(seg.Command)
		if !ok {
			e.rollback(activated)
			return nil, 0, newPluginError(ErrPluginNotFound, "unrecognized command %q", seg.Command)
		}

		instance := e.newPluginInstance(desc.Name)

		ap := &ActivePlugin{Descriptor: desc, FunctionName: functionName, Instance: instance, Args: seg.Args}

		if desc.Type == PluginTypeProcessing && e.log != nil {
			ap.Consumer = e.log.CreateConsumer(desc.Name)
		}
		if e.bus != nil {
			sub, err := e.bus.SubscribeAuto(desc.Name, scanEventFilter)
			if err != nil {
				e.rollback(activated)
				e.teardownFeeds(ap)
				e.emitPluginError(desc.Name, err)
				return nil, 0, newPluginError(ErrInitializationFailed, "plugin %s: subscribe: %v", desc.Name, err)
			}
			ap.Subscriber = sub
		}

		cfg := NewPluginConfig(desc.Name, useColors)
		if kv, ok := settings[desc.Name]; ok {
			cfg.Settings = kv
		}
		ap.Config = cfg

		if err := instance.Initialize(cfg); err != nil {
			e.rollback(activated)
			e.teardownFeeds(ap)
			e.emitPluginError(desc.Name, err)
			return nil, 0, newPluginError(ErrInitializationFailed, "plugin %s: initialize: %v", desc.Name, err)
		}
		if err := instance.ParseArguments(seg.Args); err != nil {
			e.rollback(activated)
			e.teardownFeeds(ap)
			e.emitPluginError(desc.Name, err)
			return nil, 0, newPluginError(ErrInitializationFailed, "plugin %s: parse arguments: %v", desc.Name, err)
		}

		activated = append(activated, ap)
		requires |= instance.Requires().Normalize()

		e.emitPluginActivated(desc.Name)
	}

	e.mu.Lock()
	e.active = append(e.active, activated...)
	e.mu.Unlock()

	return activated, requires, nil
}

// scanEventFilter is the Event Bus filter every activated plugin
// subscribes with: scan lifecycle events only, per spec §4.3 step 2.
func scanEventFilter(e Event) bool {
	switch e.Kind {
	case EventScanStarted, EventScanProgress, EventScanCompleted, EventScanError:
		return true
	default:
		return false
	}
}

// teardownFeeds releases ap's Log consumer and Event Bus subscription
// without calling the plugin instance's own Shutdown, used when activation
// itself fails before the plugin is considered live.
func (e *PluginEngine) teardownFeeds(ap *ActivePlugin) {
	if ap.Consumer != nil {
		ap.Consumer.Close()
	}
	if ap.Subscriber != nil && e.bus != nil {
		_ = e.bus.Unsubscribe(ap.Subscriber.ID())
	}
}

func (e *PluginEngine) rollback(activated []*ActivePlugin) {
	for i := len(activated) - 1; i >= 0; i-- {
		e.shutdownOne(activated[i])
	}
}

// Shutdown tears down every active plugin, starting each teardown in its
// own goroutine, most-recently-activated first; the teardowns run
// concurrently, so the order in which they finish is not defined. It bounds
// the whole sequence to shutdownWait and contains any panic a
// misbehaving plugin's Shutdown raises so one broken plugin cannot prevent
// the rest from being torn down.
func (e *PluginEngine) Shutdown() error {
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for i := len(active) - 1; i >= 0; i-- {
		ap := active[i]
		wg.Add(1)
		go tgo.WithRecoverShutdown(func() {
			defer wg.Done()
			if err := e.shutdownOne(ap); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		})
	}

	if !tgo.ReturnAfter(e.shutdownWait, wg.Wait) {
		logrus.Error("plugin engine shutdown exceeded bound, at least one plugin found to be blocking")
	}
	return firstErr
}

func (e *PluginEngine) shutdownOne(ap *ActivePlugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("plugin %s panicked during shutdown: %v", ap.Descriptor.Name, r)
			err = newPluginError(ErrExecutionFailed, "plugin %s panicked during shutdown: %v", ap.Descriptor.Name, r)
		}
	}()

	shutdownErr := ap.Instance.Shutdown()

	if ap.Consumer != nil {
		ap.Consumer.Close()
	}
	if ap.Subscriber != nil && e.bus != nil {
		_ = e.bus.Unsubscribe(ap.Subscriber.ID())
	}
	if e.bus != nil {
		e.bus.publishSystem(EventPluginDeactivated, map[string]interface{}{"plugin": ap.Descriptor.Name})
	}
	if shutdownErr != nil {
		return newExecutionError(ap.Descriptor.Name, "shutdown", shutdownErr)
	}
	return nil
}

func (e *PluginEngine) emitPluginActivated(name string) {
	pluginActivations.WithLabelValues(name).Inc()
	if e.bus == nil {
		return
	}
	e.bus.publishSystem(EventPluginActivated, map[string]interface{}{"plugin": name})
}

func (e *PluginEngine) emitPluginError(name string, cause error) {
	if e.bus == nil {
		return
	}
	e.bus.publishSystem(EventPluginError, map[string]interface{}{
		"plugin": name,
		"error":  fmt.Sprint(cause),
	})
}
