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

import "sync"

// guard is a short-lived mutex-guarded access point modeled on a poisoning
// mutex: if the function passed to with panics while holding the lock, the
// guard is marked poisoned and every later call to with panics immediately,
// rather than risk other callers observing state a previous panic left
// half-updated.
type guard struct {
	mu       sync.Mutex
	poisoned bool
}

func (g *guard) with(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.poisoned {
		panic("service registry guard poisoned by a previous panic")
	}
	done := false
	defer func() {
		if !done {
			g.poisoned = true
		}
	}()
	fn()
	done = true
}

// ServiceRegistry lazily constructs and holds the process-wide Event Bus,
// Message Log, and Plugin Engine singletons. Each accessor is safe to call
// concurrently from any goroutine; construction happens at most once, the
// first time a given accessor is called.
type ServiceRegistry struct {
	busGuard guard
	bus      *EventBus
	busReady bool

	logGuard guard
	log      *MessageLog
	logReady bool

	engineGuard guard
	engine      *PluginEngine
	engineReady bool
}

// NewServiceRegistry returns an empty registry; nothing is constructed
// until an accessor is first called.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{}
}

// EventBus returns the registry's Event Bus, constructing it on first call.
func (r *ServiceRegistry) EventBus() *EventBus {
	r.busGuard.with(func() {
		if !r.busReady {
			r.bus = DefaultEventBus()
			r.busReady = true
		}
	})
	return r.bus
}

// MessageLog returns the registry's Message Log, constructing it (wired to
// EventBus) on first call.
func (r *ServiceRegistry) MessageLog() *MessageLog {
	bus := r.EventBus()
	r.logGuard.with(func() {
		if !r.logReady {
			r.log = NewMessageLog(bus)
			r.logReady = true
		}
	})
	return r.log
}

// PluginEngine returns the registry's Plugin Engine, constructing it (wired
// to EventBus) on first call.
func (r *ServiceRegistry) PluginEngine() *PluginEngine {
	bus := r.EventBus()
	log := r.MessageLog()
	r.engineGuard.with(func() {
		if !r.engineReady {
			r.engine = NewPluginEngine(bus, log)
			r.engineReady = true
		}
	})
	return r.engine
}

// Default is the process-wide registry used by main.go and the reference
// plugins. Tests construct their own ServiceRegistry instead, so they never
// share state with each other or with a running process.
var Default = NewServiceRegistry()
