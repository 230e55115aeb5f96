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

package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/deeprave/repostats/core"
)

// coordinatorState tracks how far startup got, so shutdown only tears down
// what was actually brought up.
type coordinatorState int

const (
	stateNew coordinatorState = iota
	stateConfigured
	stateActivated
	stateRunning
)

// Coordinator owns the process lifecycle: load configuration, activate the
// plugins named on the command line, run them against the scan message
// stream, and shut everything down in reverse order on signal or error.
type Coordinator struct {
	registry *core.ServiceRegistry
	config   *core.Config
	opts     *options

	state     coordinatorState
	activated []*core.ActivePlugin
	requires  core.ScanRequirements
	signal    chan os.Signal
}

// NewCoordinator builds a coordinator bound to the given registry and
// parsed options; cfg may be nil (no config file was given).
func NewCoordinator(registry *core.ServiceRegistry, opts *options, cfg *core.Config) *Coordinator {
	if cfg == nil {
		cfg = &core.Config{Plugins: map[string]core.ConfigKeyValueMap{}}
	}
	return &Coordinator{registry: registry, config: cfg, opts: opts, state: stateConfigured}
}

// Activate segments the plugin-command suffix and activates every plugin
// it names, in order.
func (co *Coordinator) Activate(pluginArgs []string) error {
	engine := co.registry.PluginEngine()

	segments, err := engine.SegmentCommands(pluginArgs)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("no plugin commands given; see --plugins for what is available")
	}

	activated, requires, err := engine.Activate(segments, co.config.Plugins, co.config.UseColors)
	if err != nil {
		return err
	}

	co.activated = activated
	co.requires = requires
	co.state = stateActivated
	logrus.Infof("activated %d plugin(s), scan requirements: %08b", len(activated), requires)
	return nil
}

// Run starts every activated plugin consuming the scan message stream and
// blocks until they finish or ctx is cancelled. Processing plugins read
// scan data off their own Log Consumer; every plugin also (or instead, if
// it has no Consumer) receives its lifecycle events off its Event Bus
// Subscriber, bridged by core.FeedMessages. A concrete repository-walking
// Scanner is out of scope for this module (see core.Scanner), so Run
// itself publishes the scan lifecycle onto the bus, driving the same path
// a real Scanner's consumers would.
func (co *Coordinator) Run(ctx context.Context) error {
	co.state = stateRunning

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	var wg sync.WaitGroup
	errs := make([]error, len(co.activated))
	for i, ap := range co.activated {
		i, ap := i, ap
		messages := core.FeedMessages(scanCtx, ap)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ap.Instance.StartConsuming(ctx, messages); err != nil {
				errs[i] = fmt.Errorf("plugin %s: %w", ap.Descriptor.Name, err)
			}
		}()
	}

	bus := co.registry.EventBus()
	_ = bus.Publish(core.Event{Kind: core.EventScanStarted})
	_ = bus.Publish(core.Event{Kind: core.EventScanCompleted})

	stopScan()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Shutdown tears down the plugin engine. Safe to call even if Activate was
// never reached.
func (co *Coordinator) Shutdown() error {
	if co.state < stateActivated {
		return nil
	}
	return co.registry.PluginEngine().Shutdown()
}

// Reload re-reads the configuration file named in opts, replacing
// co.config. It does not re-activate already-running plugins; a plugin
// that wants to pick up changed settings must be restarted.
func (co *Coordinator) Reload() error {
	if co.opts.ConfigFile == "" {
		return nil
	}
	cfg, err := core.LoadConfig(co.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	co.config = cfg
	logrus.Info("configuration reloaded")
	return nil
}
