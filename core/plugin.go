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

import "context"

// BaseAPIVersion is the ABI version every plugin (built-in or externally
// loaded) must report from PluginAPIVersion. A mismatch fails discovery
// with ErrAPIVersionMismatch rather than risk loading an incompatible
// external plugin.
const BaseAPIVersion = 1

// PluginType classifies what stage of the pipeline a plugin occupies.
type PluginType int

const (
	// PluginTypeProcessing reads scan messages from its own Log consumer;
	// the messages themselves are immutable.
	PluginTypeProcessing PluginType = iota
	// PluginTypeOutput writes scan data to an external sink.
	PluginTypeOutput
	// PluginTypeNotification reacts to scan lifecycle events (started,
	// completed, error) rather than per-record data.
	PluginTypeNotification
)

func (t PluginType) String() string {
	switch t {
	case PluginTypeProcessing:
		return "processing"
	case PluginTypeOutput:
		return "output"
	case PluginTypeNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// ScanRequirements is a bitset of repository data a plugin needs the
// Streaming Scanner to produce. Requesting one requirement can imply
// others; see Normalize.
type ScanRequirements uint8

const (
	RequireHistory ScanRequirements = 1 << iota
	RequireCommits
	RequireFileChanges
	RequireFileContent
)

// Normalize returns r closed under the scan-requirement implication rules:
// FileContent implies FileChanges implies Commits, and History implies
// Commits. A plugin that asks for file content always gets commits and
// file-change metadata along with it, without having to spell out the
// whole chain itself.
func (r ScanRequirements) Normalize() ScanRequirements {
	if r&RequireFileContent != 0 {
		r |= RequireFileChanges
	}
	if r&RequireFileChanges != 0 {
		r |= RequireCommits
	}
	if r&RequireHistory != 0 {
		r |= RequireCommits
	}
	return r
}

// Has reports whether r includes every bit set in want.
func (r ScanRequirements) Has(want ScanRequirements) bool {
	return r&want == want
}

// PluginFunction is one command a plugin answers to: a primary Name plus
// zero or more Aliases that resolve to it. The engine always records the
// primary Name as a command segment's function_name, even when the
// segment was typed using one of Aliases (spec §4.3: "records an
// ActivePlugin with function_name set to the primary name, never the
// alias").
type PluginFunction struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
}

// matches reports whether token names this function, either by its
// primary Name or by one of its Aliases.
func (f PluginFunction) matches(token string) bool {
	if f.Name == token {
		return true
	}
	for _, alias := range f.Aliases {
		if alias == token {
			return true
		}
	}
	return false
}

// Plugin is the contract every built-in or externally loaded plugin
// implements. Business logic behind a plugin is out of scope; this
// interface, and the reference plugins in internal/plugins that adapt one
// real dependency each, are what exercises it end to end.
type Plugin interface {
	// Name is the plugin's canonical, unaliased identifier, used for
	// logging and the --plugins discovery report.
	Name() string
	// Functions returns every command (name plus aliases) this plugin
	// answers to. The engine resolves a command segment to whichever
	// plugin lists it here, by name or alias, first-registered wins on a
	// collision (see PluginEngine.FindByCommand).
	Functions() []PluginFunction
	Type() PluginType
	// Requires returns the plugin's raw (pre-Normalize) scan requirements.
	Requires() ScanRequirements
	// PluginAPIVersion must equal BaseAPIVersion for the plugin to load.
	PluginAPIVersion() int
	// Initialize receives the plugin's activation-time configuration. It
	// runs once, before ParseArguments, during PluginEngine.Activate.
	Initialize(cfg *PluginConfig) error
	// ParseArguments receives the plugin's trailing command-line segment
	// (the tokens after its command name, up to the next known command).
	ParseArguments(args []string) error
	// StartConsuming runs the plugin against a stream of scan messages
	// until the channel closes or ctx is cancelled. Processing/Output
	// plugins read messages; Notification plugins are expected to ignore
	// everything but ScanStarted/ScanCompleted/ScanErrorMsg variants.
	StartConsuming(ctx context.Context, messages <-chan ScanMessage) error
	// Shutdown releases any resources acquired by Initialize. Called
	// exactly once, even if StartConsuming returned an error.
	Shutdown() error
}

// PluginDescriptor is the static metadata the engine uses to decide whether
// and how to activate a plugin, independent of any running instance.
type PluginDescriptor struct {
	Name       string
	Functions  []PluginFunction
	Type       PluginType
	Requires   ScanRequirements
	Builtin    bool
	SourcePath string // empty for built-ins, manifest/library path otherwise
}

// ActivePlugin pairs a running Plugin instance with the descriptor and
// config it was activated with.
type ActivePlugin struct {
	Descriptor PluginDescriptor
	// FunctionName is the canonical (never aliased) command name this
	// activation was resolved from; see PluginFunction.
	FunctionName string
	Config       *PluginConfig
	Instance     Plugin
	Args         []string
	// Consumer is non-nil only for PluginTypeProcessing plugins (spec
	// §4.3 activation step 1: "For each ActivePlugin of type Processing,
	// allocate a Log consumer"). Output plugins receive no Consumer.
	Consumer *ConsumerHandle
	// Subscriber is the Event Bus subscription every active plugin
	// receives regardless of type (spec §4.3 activation step 2).
	Subscriber *Subscriber
}
