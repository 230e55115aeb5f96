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

package shared

import (
	"fmt"
	"sort"
	"sync"
)

// TypeRegistry is a name to factory registry used to create objects by name
// without the caller having to import every concrete implementation. The
// plugin engine uses it to register built-in plugin constructors at process
// startup (via package init()) and instantiate them later purely by the
// name recorded in a plugin descriptor.
type TypeRegistry struct {
	mutex     sync.RWMutex
	factories map[string]func() interface{}
}

// NewTypeRegistry creates an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{factories: make(map[string]func() interface{})}
}

// Register associates a name with a factory function. Re-registering the
// same name overwrites the previous factory; built-in plugins are expected
// to register exactly once from an init() function.
func (r *TypeRegistry) Register(name string, factory func() interface{}) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factories[name] = factory
}

// New creates a new instance of the named type, or an error if no factory
// was registered under that name.
func (r *TypeRegistry) New(name string) (interface{}, error) {
	r.mutex.RLock()
	factory, exists := r.factories[name]
	r.mutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown plugin type: %s", name)
	}
	return factory(), nil
}

// Names returns every registered name in sorted order.
func (r *TypeRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
