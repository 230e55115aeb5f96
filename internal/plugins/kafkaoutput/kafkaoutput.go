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

// Package kafkaoutput is a reference Output plugin: it writes commit data
// to a Kafka topic via sarama. It exists to exercise the plugin contract
// and the sarama dependency end to end, not as a production exporter.
package kafkaoutput

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shopify/sarama"

	"github.com/deeprave/repostats/core"
)

// Name is the plugin's canonical command name.
const Name = "kafkaoutput"

func init() {
	core.Default.PluginEngine().RegisterBuiltin(core.PluginDescriptor{
		Name:      Name,
		Functions: []core.PluginFunction{{Name: Name}},
		Type:      core.PluginTypeOutput,
		Requires:  core.RequireCommits,
		Builtin:   true,
	}, New)
}

// Plugin writes one Kafka message per commit scanned.
type Plugin struct {
	brokers  []string
	topic    string
	producer sarama.SyncProducer
}

// New constructs an unconfigured Plugin; Initialize must be called before use.
func New() core.Plugin { return &Plugin{} }

func (p *Plugin) Name() string               { return Name }
func (p *Plugin) Functions() []core.PluginFunction { return []core.PluginFunction{{Name: Name}} }
func (p *Plugin) Type() core.PluginType      { return core.PluginTypeOutput }
func (p *Plugin) Requires() core.ScanRequirements { return core.RequireCommits }
func (p *Plugin) PluginAPIVersion() int      { return core.BaseAPIVersion }

// Initialize reads brokers (comma-separated host:port list) and topic from
// the plugin's config section and opens a synchronous Kafka producer.
func (p *Plugin) Initialize(cfg *core.PluginConfig) error {
	brokers := cfg.GetString("brokers", "localhost:9092")
	p.brokers = strings.Split(brokers, ",")
	p.topic = cfg.GetString("topic", "repostats")

	conf := sarama.NewConfig()
	conf.Producer.Return.Successes = true
	conf.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(p.brokers, conf)
	if err != nil {
		return fmt.Errorf("kafkaoutput: connecting to %v: %w", p.brokers, err)
	}
	p.producer = producer
	return nil
}

// ParseArguments allows the topic to be overridden on the command line,
// e.g. `kafkaoutput my-topic`.
func (p *Plugin) ParseArguments(args []string) error {
	if len(args) > 0 && args[0] != "" {
		p.topic = args[0]
	}
	return nil
}

// StartConsuming writes one Kafka record per CommitData message, ignoring
// every other scan message kind.
func (p *Plugin) StartConsuming(ctx context.Context, messages <-chan core.ScanMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if msg.Kind != core.CommitData || msg.Commit == nil {
				continue
			}
			value := fmt.Sprintf("%s %s %s", msg.Commit.SHA, msg.Commit.Author, msg.Commit.Message)
			_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
				Topic: p.topic,
				Value: sarama.StringEncoder(value),
			})
			if err != nil {
				return fmt.Errorf("kafkaoutput: send: %w", err)
			}
		}
	}
}

// Shutdown closes the underlying Kafka producer.
func (p *Plugin) Shutdown() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
