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
	"fmt"
	"os"
	"path/filepath"
	pluginpkg "plugin"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"
)

// externalManifest is the on-disk description of an externally discovered
// plugin: a YAML sidecar next to the compiled shared library naming what
// the library provides, so the engine doesn't have to load the library
// just to learn its commands and requirements.
type externalManifest struct {
	Name      string           `yaml:"name"`
	Functions []PluginFunction `yaml:"functions"`
	Type      string           `yaml:"type"`
	Requires  []string         `yaml:"requires"`
	Library   string           `yaml:"library"`
}

var requirementNames = map[string]ScanRequirements{
	"history":       RequireHistory,
	"commits":       RequireCommits,
	"file_changes":  RequireFileChanges,
	"file_content":  RequireFileContent,
}

var typeNames = map[string]PluginType{
	"processing":   PluginTypeProcessing,
	"output":       PluginTypeOutput,
	"notification": PluginTypeNotification,
}

func (m *externalManifest) toDescriptor(sourcePath string) (PluginDescriptor, error) {
	t, ok := typeNames[m.Type]
	if !ok {
		return PluginDescriptor{}, fmt.Errorf("manifest %s: unknown plugin type %q", sourcePath, m.Type)
	}
	var req ScanRequirements
	for _, name := range m.Requires {
		bit, ok := requirementNames[name]
		if !ok {
			return PluginDescriptor{}, fmt.Errorf("manifest %s: unknown requirement %q", sourcePath, name)
		}
		req |= bit
	}
	return PluginDescriptor{
		Name:       m.Name,
		Functions:  m.Functions,
		Type:       t,
		Requires:   req,
		Builtin:    false,
		SourcePath: sourcePath,
	}, nil
}

// ExternalDiscovery finds, loads, and (optionally) watches a directory of
// externally built plugins: each is a compiled Go plugin (.so, built with
// `go build -buildmode=plugin`) paired with a *.manifest.yaml sidecar.
type ExternalDiscovery struct {
	engine *PluginEngine
	dir    string
}

// NewExternalDiscovery returns a discovery instance rooted at dir.
func NewExternalDiscovery(engine *PluginEngine, dir string) *ExternalDiscovery {
	return &ExternalDiscovery{engine: engine, dir: dir}
}

// ScanOnce reads every *.manifest.yaml file in the discovery directory,
// loads the shared library it names, and registers it with the engine.
// Errors for individual plugins are collected and returned alongside the
// descriptors that did load successfully, so one broken plugin doesn't
// block discovery of the rest.
func (d *ExternalDiscovery) ScanOnce() ([]PluginDescriptor, []error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, []error{newPluginError(ErrDiscoveryFailed, "reading plugin directory %s: %v", d.dir, err)}
	}

	var descriptors []PluginDescriptor
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".manifest.yaml") {
			continue
		}
		manifestPath := filepath.Join(d.dir, entry.Name())
		desc, err := d.load(manifestPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, errs
}

func (d *ExternalDiscovery) load(manifestPath string) (PluginDescriptor, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return PluginDescriptor{}, newPluginError(ErrDiscoveryFailed, "reading manifest %s: %v", manifestPath, err)
	}

	var manifest externalManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return PluginDescriptor{}, newPluginError(ErrDiscoveryFailed, "parsing manifest %s: %v", manifestPath, err)
	}

	libPath := manifest.Library
	if !filepath.IsAbs(libPath) {
		libPath = filepath.Join(d.dir, libPath)
	}
	desc, err := manifest.toDescriptor(libPath)
	if err != nil {
		return PluginDescriptor{}, newPluginError(ErrDiscoveryFailed, "%v", err)
	}

	instance, err := loadPluginLibrary(libPath)
	if err != nil {
		return PluginDescriptor{}, newPluginError(ErrDiscoveryFailed, "loading %s: %v", libPath, err)
	}

	if err := d.engine.RegisterExternal(desc, instance); err != nil {
		return PluginDescriptor{}, err
	}
	return desc, nil
}

// loadPluginLibrary opens a compiled Go plugin and resolves its exported
// `New func() core.Plugin` constructor. Go's plugin mechanism has no
// ecosystem replacement; loading a .so at a known symbol is a standard
// library operation, not a concern any third-party dependency in the pack
// covers.
func loadPluginLibrary(path string) (Plugin, error) {
	lib, err := pluginpkg.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := lib.Lookup("New")
	if err != nil {
		return nil, err
	}
	factory, ok := sym.(func() Plugin)
	if !ok {
		return nil, fmt.Errorf("%s: exported New has the wrong signature", path)
	}
	return factory(), nil
}

// Watch blocks, re-running ScanOnce whenever a manifest file is created or
// written in the discovery directory, until ctx is cancelled. Newly
// discovered plugins are only registered with the engine, never
// auto-activated; activation still requires a matching command segment.
func (d *ExternalDiscovery) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return newPluginError(ErrDiscoveryFailed, "creating watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(d.dir); err != nil {
		return newPluginError(ErrDiscoveryFailed, "watching %s: %v", d.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(event.Name, ".manifest.yaml") {
				continue
			}
			if _, errs := d.ScanOnce(); len(errs) > 0 {
				for _, e := range errs {
					logrus.Warnf("plugin discovery: %v", e)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.Warnf("plugin discovery watcher: %v", err)
		}
	}
}
