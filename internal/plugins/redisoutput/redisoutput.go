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

// Package redisoutput is a reference Output plugin: it pushes one list
// element per file change onto a Redis list via go-redis. It exists to
// exercise the plugin contract and the go-redis dependency end to end, not
// as a production exporter.
package redisoutput

import (
	"context"
	"fmt"

	"github.com/go-redis/redis"

	"github.com/deeprave/repostats/core"
)

// Name is the plugin's canonical command name.
const Name = "redisoutput"

func init() {
	core.Default.PluginEngine().RegisterBuiltin(core.PluginDescriptor{
		Name:      Name,
		Functions: []core.PluginFunction{{Name: Name}},
		Type:      core.PluginTypeOutput,
		Requires:  core.RequireFileChanges,
	}, New)
}

// Plugin pushes file-change summaries onto a Redis list.
type Plugin struct {
	client *redis.Client
	key    string
}

// New constructs an unconfigured Plugin; Initialize must be called before use.
func New() core.Plugin { return &Plugin{} }

func (p *Plugin) Name() string                    { return Name }
func (p *Plugin) Functions() []core.PluginFunction { return []core.PluginFunction{{Name: Name}} }
func (p *Plugin) Type() core.PluginType           { return core.PluginTypeOutput }
func (p *Plugin) Requires() core.ScanRequirements { return core.RequireFileChanges }
func (p *Plugin) PluginAPIVersion() int           { return core.BaseAPIVersion }

// Initialize reads address, db, and list key from the plugin's config
// section and opens a Redis client.
func (p *Plugin) Initialize(cfg *core.PluginConfig) error {
	addr := cfg.GetString("address", "localhost:6379")
	db := cfg.GetInt("db", 0)
	p.key = cfg.GetString("key", "repostats:changes")

	p.client = redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := p.client.Ping().Err(); err != nil {
		return fmt.Errorf("redisoutput: connecting to %s: %w", addr, err)
	}
	return nil
}

// ParseArguments allows the list key to be overridden on the command line.
func (p *Plugin) ParseArguments(args []string) error {
	if len(args) > 0 && args[0] != "" {
		p.key = args[0]
	}
	return nil
}

// StartConsuming pushes one Redis list element per FileChange message.
func (p *Plugin) StartConsuming(ctx context.Context, messages <-chan core.ScanMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Kind != core.FileChange || msg.FileChange == nil {
				continue
			}
			entry := fmt.Sprintf("%s %s %s +%d -%d", msg.FileChange.CommitSHA, msg.FileChange.Status,
				msg.FileChange.Path, msg.FileChange.Additions, msg.FileChange.Deletions)
			if err := p.client.RPush(p.key, entry).Err(); err != nil {
				return fmt.Errorf("redisoutput: rpush: %w", err)
			}
		}
	}
}

// Shutdown closes the Redis client.
func (p *Plugin) Shutdown() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
