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
	"context"

	"github.com/deeprave/repostats/shared"
)

// FeedMessages bridges ap's activation-time feed into the ScanMessage
// channel Plugin.StartConsuming expects (spec §2: "Publisher appends to
// the Log → each activated processing plugin's Consumer reads at its own
// cursor"). A Processing plugin reads decoded scan data from its Consumer;
// an Output or Notification plugin, which has no Consumer, instead reads
// its Event Bus Subscriber's lifecycle events translated to the matching
// ScanMessage variants. The returned channel is closed when ctx is done or
// the underlying source is exhausted.
func FeedMessages(ctx context.Context, ap *ActivePlugin) <-chan ScanMessage {
	out := make(chan ScanMessage)
	switch {
	case ap.Consumer != nil:
		go feedFromConsumer(ctx, ap.Consumer, out)
	case ap.Subscriber != nil:
		go feedFromSubscriber(ctx, ap.Subscriber, out)
	default:
		close(out)
	}
	return out
}

func feedFromConsumer(ctx context.Context, consumer *ConsumerHandle, out chan<- ScanMessage) {
	defer close(out)
	for {
		msg, err := consumer.ReadOneBlocking(ctx, shared.SpinPriorityMedium)
		if err != nil {
			return
		}
		scanMsg, err := DecodeScanMessage(msg.Payload)
		if err != nil {
			continue
		}
		select {
		case out <- scanMsg:
		case <-ctx.Done():
			return
		}
	}
}

func feedFromSubscriber(ctx context.Context, sub *Subscriber, out chan<- ScanMessage) {
	defer close(out)
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			scanMsg, ok := eventToScanMessage(*evt)
			if !ok {
				continue
			}
			select {
			case out <- scanMsg:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// eventToScanMessage translates a bus-delivered scan lifecycle event into
// the ScanMessage variant a Notification or Output plugin expects; other
// event kinds never reach here since every feed's Subscriber was created
// with scanEventFilter.
func eventToScanMessage(e Event) (ScanMessage, bool) {
	switch e.Kind {
	case EventScanStarted:
		return ScanMessage{Kind: ScanStarted}, true
	case EventScanProgress:
		return ScanMessage{Kind: ScanProgress}, true
	case EventScanCompleted:
		return ScanMessage{Kind: ScanCompleted}, true
	case EventScanError:
		return ScanMessage{Kind: ScanErrorMsg}, true
	default:
		return ScanMessage{}, false
	}
}
