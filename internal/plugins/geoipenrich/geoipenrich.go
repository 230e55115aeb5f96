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

// Package geoipenrich is a reference Processing plugin: it looks up the
// geographic origin of a commit's recorded author IP (when the hosting
// platform captured one) via maxminddb/geoip2. It exists to exercise the
// plugin contract and the geoip2 dependency end to end; since the plugin
// contract has no way to forward a mutated message downstream, it reports
// what it found through the structured logger instead of a production
// enrichment path.
package geoipenrich

import (
	"context"
	"fmt"
	"net"

	geoip2 "gopkg.in/oschwald/geoip2-golang.v1"

	"github.com/sirupsen/logrus"

	"github.com/deeprave/repostats/core"
)

// Name is the plugin's canonical command name.
const Name = "geoipenrich"

func init() {
	core.Default.PluginEngine().RegisterBuiltin(core.PluginDescriptor{
		Name:      Name,
		Functions: []core.PluginFunction{{Name: Name}},
		Type:      core.PluginTypeProcessing,
		Requires:  core.RequireCommits,
	}, New)
}

// Plugin resolves commit author IPs to country/city via a MaxMind database.
type Plugin struct {
	reader *geoip2.Reader
}

// New constructs an unconfigured Plugin; Initialize must be called before use.
func New() core.Plugin { return &Plugin{} }

func (p *Plugin) Name() string                    { return Name }
func (p *Plugin) Functions() []core.PluginFunction { return []core.PluginFunction{{Name: Name}} }
func (p *Plugin) Type() core.PluginType           { return core.PluginTypeProcessing }
func (p *Plugin) Requires() core.ScanRequirements { return core.RequireCommits }
func (p *Plugin) PluginAPIVersion() int           { return core.BaseAPIVersion }

// Initialize opens the MaxMind GeoLite2 City database at the path given by
// the "database" setting.
func (p *Plugin) Initialize(cfg *core.PluginConfig) error {
	path := cfg.GetString("database", "GeoLite2-City.mmdb")
	reader, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("geoipenrich: opening %s: %w", path, err)
	}
	p.reader = reader
	return nil
}

// ParseArguments ignores its arguments: the plugin takes none, and any given
// are accepted without error.
func (p *Plugin) ParseArguments(args []string) error { return nil }

// StartConsuming logs the resolved country/city of every commit that has a
// recorded author IP.
func (p *Plugin) StartConsuming(ctx context.Context, messages <-chan core.ScanMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Kind != core.CommitData || msg.Commit == nil || msg.Commit.AuthorIP == "" {
				continue
			}
			ip := net.ParseIP(msg.Commit.AuthorIP)
			if ip == nil {
				continue
			}
			record, err := p.reader.City(ip)
			if err != nil {
				logrus.Warnf("geoipenrich: lookup %s: %v", msg.Commit.AuthorIP, err)
				continue
			}
			logrus.Infof("geoipenrich: commit %s author %s (%s) -> %s, %s",
				msg.Commit.SHA, msg.Commit.Author, msg.Commit.AuthorIP,
				record.City.Names["en"], record.Country.Names["en"])
		}
	}
}

// Shutdown closes the MaxMind database.
func (p *Plugin) Shutdown() error {
	if p.reader == nil {
		return nil
	}
	return p.reader.Close()
}
