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

import "time"

// Message is an immutable, sequenced record shared by reference among all
// consumers that read it. Once Publish returns, no field of a Message is
// ever mutated again; every consumer that observes a given Sequence sees
// byte-identical content (see MessageLog.Publish).
type Message struct {
	Sequence    uint64
	Timestamp   time.Time
	ProducerID  string
	MessageType string
	Payload     string
}

// newMessage builds a Message without a sequence or timestamp; both are
// assigned by MessageLog.Publish under its single-writer critical section.
func newMessage(producerID, messageType, payload string) Message {
	return Message{
		ProducerID:  producerID,
		MessageType: messageType,
		Payload:     payload,
	}
}
