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

import "github.com/prometheus/client_golang/prometheus"

// Prometheus collectors for the Message Log, Event Bus, and Plugin Engine.
// Registered once at package init time; callers scrape them via whatever
// HTTP handler wires prometheus.DefaultRegisterer into a /metrics route.
var (
	messagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repostats",
		Subsystem: "log",
		Name:      "messages_published_total",
		Help:      "Messages published to the message log, by producer id.",
	}, []string{"producer_id"})

	logTotalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "repostats",
		Subsystem: "log",
		Name:      "total_bytes",
		Help:      "Approximate retained message log size in bytes.",
	})

	logGCDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "repostats",
		Subsystem: "log",
		Name:      "gc_messages_dropped_total",
		Help:      "Messages removed from the log by garbage collection.",
	})

	busSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "repostats",
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Currently registered event bus subscribers.",
	})

	busQueueTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "repostats",
		Subsystem: "bus",
		Name:      "queued_events",
		Help:      "Sum of queue depth across all event bus subscribers.",
	})

	pluginActivations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repostats",
		Subsystem: "engine",
		Name:      "plugin_activations_total",
		Help:      "Plugin activations, by plugin name.",
	}, []string{"plugin"})
)

func init() {
	prometheus.MustRegister(
		messagesPublished,
		logTotalBytes,
		logGCDropped,
		busSubscribers,
		busQueueTotal,
		pluginActivations,
	)
}
