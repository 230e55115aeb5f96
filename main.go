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
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/deeprave/repostats/core"
	"github.com/deeprave/repostats/internal/applog"
	"github.com/deeprave/repostats/logger"

	// Reference plugins register themselves with core.Default's Plugin
	// Engine from their own init(), the same pattern database/sql drivers
	// use. Importing for side effect is deliberate.
	_ "github.com/deeprave/repostats/internal/plugins/elasticnotify"
	_ "github.com/deeprave/repostats/internal/plugins/geoipenrich"
	_ "github.com/deeprave/repostats/internal/plugins/kafkaoutput"
	_ "github.com/deeprave/repostats/internal/plugins/redisoutput"
)

var logBuffer = applog.New()

func main() {
	logrus.AddHook(logBuffer)
	logrus.SetOutput(os.Stdout)

	opts, pluginArgs, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.Version {
		fmt.Println(GetVersionString())
		return
	}

	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --log-level %q: %v\n", opts.LogLevel, err)
		os.Exit(2)
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	useColors := opts.LogColors == "always" || (opts.LogColors == "auto" && isTerminal(os.Stdout))
	if os.Getenv("NO_COLOR") != "" {
		useColors = false
	}
	if useColors {
		logrus.SetFormatter(logger.NewConsoleFormatter())
	}
	logBuffer.SetTargetWriter(os.Stdout)
	logBuffer.Purge()

	if opts.NumCPU > 0 {
		runtime.GOMAXPROCS(opts.NumCPU)
	} else if _, err := maxprocs.Set(maxprocs.Logger(logrus.Debugf)); err != nil {
		logrus.Warnf("automaxprocs: %v", err)
	}

	registry := core.Default

	if opts.Plugins {
		printPlugins(registry)
		return
	}

	var cfg *core.Config
	if opts.ConfigFile != "" {
		cfg, err = core.LoadConfig(opts.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	co := NewCoordinator(registry, opts, cfg)
	if err := co.Activate(pluginArgs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var metrics *metricsServer
	if opts.MetricsAddr != "" {
		metrics = newMetricsServer(opts.MetricsAddr)
		go metrics.Start()
		defer metrics.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := newSignalHandler()
	go func() {
		for sig := range sigCh {
			switch translateSignal(sig) {
			case signalExit:
				logrus.Info("received shutdown signal")
				cancel()
				return
			case signalReload:
				if err := co.Reload(); err != nil {
					logrus.Error(err)
				}
			}
		}
	}()

	if err := co.Run(ctx); err != nil {
		logrus.Error(err)
	}
	if err := co.Shutdown(); err != nil {
		logrus.Error(err)
	}
}

func printPlugins(registry *core.ServiceRegistry) {
	for _, d := range registry.PluginEngine().Descriptors() {
		origin := "built-in"
		if !d.Builtin {
			origin = d.SourcePath
		}
		names := make([]string, len(d.Functions))
		for i, fn := range d.Functions {
			names[i] = fn.Name
			if len(fn.Aliases) > 0 {
				names[i] += "(" + strings.Join(fn.Aliases, ",") + ")"
			}
		}
		fmt.Printf("%-16s %-12s %s [%s]\n", d.Name, d.Type, names, origin)
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
