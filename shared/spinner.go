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

// Package shared holds small, dependency-free helpers used by core.
package shared

import (
	"runtime"
	"time"
)

// Spinner implements a backoff policy for loops that poll a non-blocking
// resource. Consumer read loops (core.ConsumerHandle) use it to implement the
// "polling with backoff" suspension point: the message log never blocks,
// so a caught-up reader spins briefly before sleeping.
type Spinner struct {
	count    uint32
	priority SpinPriority
}

// SpinPriority selects how aggressively a Spinner backs off.
type SpinPriority uint32

const (
	// SpinPrioritySuspend is for loops expected to wait a long time between
	// useful iterations. Sleeps a full second once the threshold is hit.
	SpinPrioritySuspend = SpinPriority(1)

	// SpinPriorityLow sleeps 200ms after 100 unproductive iterations.
	SpinPriorityLow = SpinPriority(100)

	// SpinPriorityMedium sleeps 100ms after 500 unproductive iterations. This
	// is the priority the plugin feed's consumer read loop (core.FeedMessages)
	// uses.
	SpinPriorityMedium = SpinPriority(500)

	// SpinPriorityHigh sleeps 10ms after 1000 unproductive iterations: retry
	// quickly, but still yield the CPU once it's clear nothing is queued.
	SpinPriorityHigh = SpinPriority(1000)

	// SpinPriorityRealtime never sleeps, only yields the scheduler.
	SpinPriorityRealtime = SpinPriority(0xFFFFFFFF)

	spinTimeSuspend = time.Second
	spinTimeLow     = 200 * time.Millisecond
	spinTimeMedium  = 100 * time.Millisecond
	spinTimeHigh    = 10 * time.Millisecond
)

// NewSpinner creates a Spinner with the given backoff priority.
func NewSpinner(priority SpinPriority) Spinner {
	return Spinner{priority: priority}
}

// Yield should be called once per loop iteration that found no work to do.
// It sleeps according to the configured priority once enough unproductive
// iterations have accumulated.
func (spin *Spinner) Yield() {
	if spin.count >= uint32(spin.priority) {
		spin.count = 0
		switch spin.priority {
		case SpinPrioritySuspend:
			time.Sleep(spinTimeSuspend)
		case SpinPriorityLow:
			time.Sleep(spinTimeLow)
		case SpinPriorityMedium:
			time.Sleep(spinTimeMedium)
		case SpinPriorityHigh:
			time.Sleep(spinTimeHigh)
		default:
			runtime.Gosched()
		}
		return
	}
	spin.count++
	runtime.Gosched()
}

// Reset clears the internal iteration counter, e.g. after a productive read.
func (spin *Spinner) Reset() {
	spin.count = 0
}
