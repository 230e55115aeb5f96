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
	"os"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config is the parsed form of the repository's top-level YAML
// configuration file: one reserved key, use_colors, plus a free-form
// settings section per plugin name.
type Config struct {
	UseColors bool
	Plugins   map[string]ConfigKeyValueMap
}

// LoadConfig reads and parses the YAML configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration already read into memory.
func ParseConfig(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing yaml config")
	}

	cfg := &Config{Plugins: make(map[string]ConfigKeyValueMap)}
	for key, val := range raw {
		if key == "use_colors" {
			b, ok := val.(bool)
			if !ok {
				return nil, newLogError(ErrInvalidConfiguration, "use_colors must be a boolean, got %T", val)
			}
			cfg.UseColors = b
			continue
		}

		section, ok := toSettings(val)
		if !ok {
			return nil, newLogError(ErrInvalidConfiguration, "plugin section %q must be a mapping of string settings", key)
		}
		cfg.Plugins[key] = section
	}
	return cfg, nil
}

// toSettings converts one plugin's YAML mapping (decoded by yaml.v2 as
// map[interface{}]interface{}) into a ConfigKeyValueMap, stringifying
// scalar values so PluginConfig's typed accessors can re-parse them.
func toSettings(val interface{}) (ConfigKeyValueMap, bool) {
	m, ok := val.(map[interface{}]interface{})
	if !ok {
		return nil, false
	}
	out := make(ConfigKeyValueMap, len(m))
	for k, v := range m {
		ks, ok := k.(string)
		if !ok {
			return nil, false
		}
		out[ks] = fmt.Sprint(v)
	}
	return out, true
}
