package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanRequirementsNormalizeClosesImplications(t *testing.T) {
	tests := []struct {
		name     string
		in       ScanRequirements
		expected ScanRequirements
	}{
		{"file content implies file changes and commits", RequireFileContent, RequireFileContent | RequireFileChanges | RequireCommits},
		{"file changes implies commits only", RequireFileChanges, RequireFileChanges | RequireCommits},
		{"history implies commits", RequireHistory, RequireHistory | RequireCommits},
		{"commits alone stays commits", RequireCommits, RequireCommits},
		{"zero stays zero", 0, 0},
		{"history and file content compose", RequireHistory | RequireFileContent, RequireHistory | RequireFileContent | RequireFileChanges | RequireCommits},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.in.Normalize())
		})
	}
}

func TestScanRequirementsHas(t *testing.T) {
	r := (RequireFileContent).Normalize()
	assert.True(t, r.Has(RequireCommits))
	assert.True(t, r.Has(RequireFileChanges|RequireCommits))
	assert.False(t, r.Has(RequireHistory))
}

func TestPluginTypeString(t *testing.T) {
	tests := []struct {
		name     string
		in       PluginType
		expected string
	}{
		{"processing", PluginTypeProcessing, "processing"},
		{"output", PluginTypeOutput, "output"},
		{"notification", PluginTypeNotification, "notification"},
		{"unknown value", PluginType(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.in.String())
		})
	}
}
