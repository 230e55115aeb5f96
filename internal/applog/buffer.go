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

// Package applog provides the startup log buffer: a logrus.Hook that pools
// log entries emitted before the process knows its final log destination
// (a terminal, a file, or a Notification plugin that wants to relay log
// lines onto the event bus), then replays them once that destination is
// decided.
package applog

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Buffer implements logrus.Hook. Before a target is set, every entry it
// sees is pooled; once SetTargetWriter or SetTargetHook is called, Purge
// relays the pooled entries in order and later entries are relayed
// immediately.
type Buffer struct {
	targetHook   logrus.Hook
	targetWriter io.Writer
	buffer       []*logrus.Entry
}

// New returns an empty Buffer with no target set.
func New() *Buffer { return &Buffer{} }

// Levels implements logrus.Hook: the buffer pools every level.
func (b *Buffer) Levels() []logrus.Level { return logrus.AllLevels }

// Fire implements logrus.Hook.
func (b *Buffer) Fire(entry *logrus.Entry) error {
	if b.targetHook == nil && b.targetWriter == nil {
		b.buffer = append(b.buffer, entry)
		return nil
	}
	return b.relay(entry)
}

// SetTargetWriter sets the io.Writer entries should be formatted and
// written to once a destination is known.
func (b *Buffer) SetTargetWriter(w io.Writer) { b.targetWriter = w }

// SetTargetHook sets a logrus.Hook entries should be forwarded to once a
// destination is known, e.g. one that republishes log lines onto the event
// bus as Scan/System events for a Notification plugin to consume.
func (b *Buffer) SetTargetHook(hook logrus.Hook) { b.targetHook = hook }

// Purge relays every pooled entry to the current target(s) and empties the
// pool. Calling Purge before a target is set is a no-op.
func (b *Buffer) Purge() {
	if b.targetHook == nil && b.targetWriter == nil {
		return
	}
	for _, entry := range b.buffer {
		_ = b.relay(entry)
	}
	b.buffer = nil
}

func (b *Buffer) relay(entry *logrus.Entry) error {
	if b.targetHook != nil {
		if err := b.targetHook.Fire(entry); err != nil {
			return err
		}
	}
	if b.targetWriter != nil {
		serialized, err := entry.Logger.Formatter.Format(entry)
		if err != nil {
			return fmt.Errorf("applog: formatting entry: %w", err)
		}
		if _, err := b.targetWriter.Write(serialized); err != nil {
			return fmt.Errorf("applog: writing entry: %w", err)
		}
	}
	return nil
}
