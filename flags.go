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

package main

import (
	"github.com/jessevdk/go-flags"
)

// options holds every global CLI flag. Trailing tokens that are not
// recognized flags (the plugin-command suffix: one or more plugin command
// names, each followed by its own arguments) are left unparsed by
// ParseArgs and returned to the caller rather than treated as an error, so
// `repostats --config repo.yaml kafkaoutput --topic commits geoipenrich`
// parses the global flags first and hands the rest to the Plugin Engine's
// command segmentation.
type options struct {
	ConfigFile  string `short:"c" long:"config" description:"Path to the YAML configuration file" value-name:"FILE"`
	LogLevel    string `short:"l" long:"log-level" description:"Minimum log level (debug, info, warn, error)" default:"info"`
	LogColors   string `long:"log-colors" description:"When to use colored console output" choice:"auto" choice:"always" choice:"never" default:"auto"`
	MetricsAddr string `long:"metrics-addr" description:"Address to serve /metrics on, e.g. :9090" value-name:"ADDR"`
	NumCPU      int    `long:"num-cpu" description:"GOMAXPROCS override; 0 lets automaxprocs size it from the cgroup" default:"0"`
	Plugins     bool   `long:"plugins" description:"List discovered plugins and exit"`
	Verbose     bool   `short:"v" long:"verbose" description:"Enable verbose (debug-level) logging, overriding --log-level"`
	Version     bool   `short:"V" long:"version" description:"Print the version and exit"`
}

// parseFlags parses os.Args[1:] (via the caller-supplied argv so tests can
// drive it without touching the real process args), returning the parsed
// global options and the unparsed trailing plugin-command suffix.
func parseFlags(argv []string) (*options, []string, error) {
	opts := &options{}
	parser := flags.NewParser(opts, (flags.Default&^flags.PrintErrors)|flags.IgnoreUnknown)
	remaining, err := parser.ParseArgs(argv)
	if err != nil {
		return nil, nil, err
	}
	return opts, remaining, nil
}
