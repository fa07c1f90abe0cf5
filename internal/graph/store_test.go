package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempGraphPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "graph.puml")
}

func TestStoreLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(tempGraphPath(t))
	require.NoError(t, s.Load())
	assert.Empty(t, s.Graph().Nodes)
}

func TestStoreLoadMintsStableIDs(t *testing.T) {
	path := tempGraphPath(t)
	require.NoError(t, os.WriteFile(path, []byte("component a\ncomponent b\na --> b\n"), 0600))

	s := NewStore(path)
	require.NoError(t, s.Load())

	idA, ok := s.IDFor("a")
	require.True(t, ok)
	idB, ok := s.IDFor("b")
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)

	g := s.Graph()
	assert.Equal(t, []string{idA}, g.Dependencies(idB), "b depends on a")

	// Reloading keeps existing bindings.
	require.NoError(t, s.Load())
	idA2, _ := s.IDFor("a")
	assert.Equal(t, idA, idA2)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := tempGraphPath(t)
	s := NewStore(path)
	require.NoError(t, s.Load())

	g := New()
	g.AddNode("item-auth", "Auth Service")
	g.AddNode("item-db", "Database")
	g.AddDependency("item-auth", "item-db")
	require.NoError(t, s.Save(g))

	// A fresh store with the same bindings reads back the same graph.
	s2 := NewStore(path)
	alias, ok := s.AliasFor("item-auth")
	require.True(t, ok)
	s2.Bind(alias, "item-auth")
	aliasDB, _ := s.AliasFor("item-db")
	s2.Bind(aliasDB, "item-db")
	require.NoError(t, s2.Load())

	g2 := s2.Graph()
	require.True(t, g2.Contains("item-auth"))
	require.True(t, g2.Contains("item-db"))
	assert.Equal(t, "Auth Service", g2.Nodes["item-auth"].Title)
	assert.Equal(t, []string{"item-db"}, g2.Dependencies("item-auth"))
}

func TestStoreSaveFramesWithBlockMarkers(t *testing.T) {
	path := tempGraphPath(t)
	s := NewStore(path)

	g := New()
	g.AddNode("0123456789abcdef", "Thing")
	require.NoError(t, s.Save(g))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "@startuml\n")
	assert.Contains(t, text, "@enduml\n")
	// Alias minted from the id prefix.
	assert.Contains(t, text, `rectangle "Thing" as 01234567`)
}

func TestStoreGraphReturnsSnapshot(t *testing.T) {
	s := NewStore(tempGraphPath(t))
	require.NoError(t, s.Load())

	snap := s.Graph()
	snap.AddNode("x", "mutated")
	assert.False(t, s.Graph().Contains("x"), "mutating a snapshot must not affect the store")
}
