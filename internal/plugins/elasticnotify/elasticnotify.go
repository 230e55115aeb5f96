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

// Package elasticnotify is a reference Notification plugin: it indexes one
// Elasticsearch document per scan lifecycle event via olivere/elastic. It
// exists to exercise the plugin contract and the elastic.v5 dependency end
// to end, not as a production exporter.
package elasticnotify

import (
	"context"
	"fmt"
	"time"

	elastic "gopkg.in/olivere/elastic.v5"

	"github.com/deeprave/repostats/core"
)

// Name is the plugin's canonical command name.
const Name = "elasticnotify"

func init() {
	core.Default.PluginEngine().RegisterBuiltin(core.PluginDescriptor{
		Name:      Name,
		Functions: []core.PluginFunction{{Name: Name}},
		Type:      core.PluginTypeNotification,
		Requires:  0,
	}, New)
}

type notification struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Plugin indexes scan lifecycle notifications into Elasticsearch.
type Plugin struct {
	client *elastic.Client
	index  string
}

// New constructs an unconfigured Plugin; Initialize must be called before use.
func New() core.Plugin { return &Plugin{} }

func (p *Plugin) Name() string                    { return Name }
func (p *Plugin) Functions() []core.PluginFunction { return []core.PluginFunction{{Name: Name}} }
func (p *Plugin) Type() core.PluginType           { return core.PluginTypeNotification }
func (p *Plugin) Requires() core.ScanRequirements { return 0 }
func (p *Plugin) PluginAPIVersion() int           { return core.BaseAPIVersion }

// Initialize reads the cluster URL and index name from the plugin's config
// section and opens an Elasticsearch client.
func (p *Plugin) Initialize(cfg *core.PluginConfig) error {
	url := cfg.GetString("url", "http://localhost:9200")
	p.index = cfg.GetString("index", "repostats-notifications")

	client, err := elastic.NewClient(elastic.SetURL(url), elastic.SetSniff(false))
	if err != nil {
		return fmt.Errorf("elasticnotify: connecting to %s: %w", url, err)
	}
	p.client = client
	return nil
}

// ParseArguments allows the index name to be overridden on the command line.
func (p *Plugin) ParseArguments(args []string) error {
	if len(args) > 0 && args[0] != "" {
		p.index = args[0]
	}
	return nil
}

// StartConsuming indexes one document per ScanStarted message, and per
// ScanCompleted or ScanErrorMsg message that carries its Completed or Error
// payload (those without one are skipped); every other scan message kind is
// ignored, since this plugin reacts to lifecycle, not per-record data.
func (p *Plugin) StartConsuming(ctx context.Context, messages <-chan core.ScanMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			doc, ok := p.toNotification(msg)
			if !ok {
				continue
			}
			if _, err := p.client.Index().Index(p.index).Type("notification").BodyJson(doc).Do(ctx); err != nil {
				return fmt.Errorf("elasticnotify: index: %w", err)
			}
		}
	}
}

func (p *Plugin) toNotification(msg core.ScanMessage) (notification, bool) {
	switch msg.Kind {
	case core.ScanStarted:
		return notification{Event: "scan_started", Timestamp: time.Now().UTC()}, true
	case core.ScanCompleted:
		if msg.Completed == nil {
			return notification{}, false
		}
		return notification{
			Event:     "scan_completed",
			Timestamp: time.Now().UTC(),
			Detail:    fmt.Sprintf("%d commits, %d files changed", msg.Completed.CommitsScanned, msg.Completed.FilesChanged),
		}, true
	case core.ScanErrorMsg:
		if msg.Error == nil {
			return notification{}, false
		}
		return notification{
			Event:     "scan_error",
			Timestamp: time.Now().UTC(),
			Detail:    fmt.Sprint(msg.Error.Err),
		}, true
	default:
		return notification{}, false
	}
}

// Shutdown is a no-op: the elastic.v5 client holds no resources that need
// explicit release.
func (p *Plugin) Shutdown() error { return nil }
