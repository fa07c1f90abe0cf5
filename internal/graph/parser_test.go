package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodesAndEdges(t *testing.T) {
	result := Parse(`
@startuml
component "Auth Service" as auth
rectangle "Database Layer" as db
node worker
auth --> worker : feeds
db ..> worker
@enduml
`)

	require.False(t, result.HasErrors(), "diagnostics: %v", result.Errors)
	require.Len(t, result.Nodes, 3)

	assert.Equal(t, "Auth Service", result.Nodes["auth"].Title)
	assert.Equal(t, "component", result.Nodes["auth"].Type)
	// A bare declaration uses the alias as its title.
	assert.Equal(t, "worker", result.Nodes["worker"].Title)

	require.Len(t, result.Edges, 2)
	assert.Equal(t, ParsedEdge{From: "auth", To: "worker", Label: "feeds", Line: 6}, result.Edges[0])
	assert.Equal(t, "db", result.Edges[1].From)
	assert.Empty(t, result.Edges[1].Label)
}

func TestParseReversedArrows(t *testing.T) {
	tests := []struct {
		name string
		line string
		from string
		to   string
	}{
		{"solid reversed", "a <-- b", "b", "a"},
		{"dashed reversed", "a <.. b", "b", "a"},
		{"bold reversed", "a <== b", "b", "a"},
		{"solid forward", "a --> b", "a", "b"},
		{"bold forward", "a ==> b", "a", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse("component a\ncomponent b\n" + tt.line + "\n")
			require.Len(t, result.Edges, 1)
			assert.Equal(t, tt.from, result.Edges[0].From)
			assert.Equal(t, tt.to, result.Edges[0].To)
		})
	}
}

func TestParseDiagnosticsAreData(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "duplicate alias",
			input:   "component a\nrectangle \"Other\" as a\n",
			wantErr: `duplicate alias "a"`,
		},
		{
			name:    "unknown edge alias",
			input:   "component a\na --> ghost\n",
			wantErr: `unknown alias "ghost"`,
		},
		{
			name:    "stray enduml",
			input:   "@enduml\n",
			wantErr: "stray @enduml",
		},
		{
			name:    "stray startuml inside block",
			input:   "@startuml\n@startuml\n@enduml\n",
			wantErr: "stray @startuml",
		},
		{
			name:    "unclosed block",
			input:   "@startuml\ncomponent a\n",
			wantErr: "unclosed @startuml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.input)
			require.True(t, result.HasErrors())
			found := false
			for _, e := range result.Errors {
				if strings.Contains(e.Message, tt.wantErr) {
					found = true
				}
			}
			assert.True(t, found, "expected %q in %v", tt.wantErr, result.Errors)
		})
	}
}

func TestParseUnclosedBlockStillYieldsNodes(t *testing.T) {
	result := Parse("@startuml\ncomponent a\ncomponent b\na --> b\n")
	assert.True(t, result.HasErrors())
	assert.Len(t, result.Nodes, 2)
	assert.Len(t, result.Edges, 1)
}

func TestParseIgnoresNoise(t *testing.T) {
	result := Parse(`
' a comment line
component a
skinparam backgroundColor white
title Some Diagram
component b
a --> b
`)
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Errors)
	assert.Len(t, result.Nodes, 2)
	assert.Len(t, result.Edges, 1)
}

func TestParseOutsideBlockIgnoredWhenBlocksUsed(t *testing.T) {
	result := Parse("component outside\n@startuml\ncomponent inside\n@enduml\n")
	_, hasOutside := result.Nodes["outside"]
	assert.False(t, hasOutside)
	_, hasInside := result.Nodes["inside"]
	assert.True(t, hasInside)
}

func TestParseEmptyInput(t *testing.T) {
	result := Parse("")
	assert.False(t, result.HasErrors())
	assert.Empty(t, result.Nodes)
	assert.Empty(t, result.Edges)
}

func TestParseEdgeBeforeDeclaration(t *testing.T) {
	result := Parse("a --> b\ncomponent a\ncomponent b\n")
	require.False(t, result.HasErrors(), "diagnostics: %v", result.Errors)
	assert.Len(t, result.Edges, 1)
}
