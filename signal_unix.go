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

//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// signalType classifies an incoming OS signal for the coordinator's main
// loop.
type signalType int

const (
	signalNone signalType = iota
	// signalExit requests an orderly shutdown: stop accepting new scan
	// work, shut down the plugin engine, then exit.
	signalExit
	// signalReload requests the configuration file be re-read (see
	// Coordinator.Reload); plugins already running keep the settings they
	// were activated with.
	signalReload
)

func newSignalHandler() chan os.Signal {
	signalHandler := make(chan os.Signal, 1)
	signal.Notify(signalHandler, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	return signalHandler
}

func translateSignal(sig os.Signal) signalType {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		return signalExit
	case syscall.SIGHUP:
		return signalReload
	}
	return signalNone
}
