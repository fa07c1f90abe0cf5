package graph

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/elephantgerald/bartleby-sub001/internal/debug"
)

// Store persists the dependency graph as DSL text and maintains the
// alias-to-id bidirectional mapping so that round-tripping a graph file does
// not change ids. Persisted identity lives in the file plus the work-item
// repository; the in-memory maps are a cache.
type Store struct {
	path string

	mu        sync.RWMutex
	aliasToID map[string]string
	idToAlias map[string]string
	graph     *Graph
	last      *ParseResult

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates a store for the graph file at path. Call Load before
// first use; a missing file loads as an empty graph.
func NewStore(path string) *Store {
	return &Store{
		path:      path,
		aliasToID: make(map[string]string),
		idToAlias: make(map[string]string),
		graph:     New(),
	}
}

// Path returns the graph file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and parses the graph file, rebuilding the typed graph. Aliases
// already bound to an id keep that id; new aliases mint a fresh one. Parse
// diagnostics are retained for LastParse; a file full of errors still loads
// whatever parsed cleanly.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.graph = New()
		s.last = &ParseResult{Nodes: map[string]ParsedNode{}}
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading graph file: %w", err)
	}

	result := Parse(string(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	// Bind aliases in sorted order so id minting is deterministic per load.
	aliases := make([]string, 0, len(result.Nodes))
	for alias := range result.Nodes {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	g := New()
	for _, alias := range aliases {
		id, ok := s.aliasToID[alias]
		if !ok {
			id = uuid.NewString()
			s.aliasToID[alias] = id
			s.idToAlias[id] = alias
		}
		g.AddNode(id, result.Nodes[alias].Title)
	}
	for _, edge := range result.Edges {
		depID, ok1 := s.aliasToID[edge.From]
		depdtID, ok2 := s.aliasToID[edge.To]
		if !ok1 || !ok2 {
			continue // unknown aliases already reported as parse errors
		}
		g.AddDependency(depdtID, depID)
	}

	s.graph = g
	s.last = result
	return nil
}

// Save serializes the graph to the DSL file, framed by @startuml/@enduml.
// Ids without a prior alias use the first 8 characters of their textual form.
func (s *Store) Save(g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("@startuml\n")

	ids := g.IDs()
	for _, id := range ids {
		alias := s.bindAliasLocked(id)
		fmt.Fprintf(&b, "rectangle %q as %s\n", g.Nodes[id].Title, alias)
	}
	for _, id := range ids {
		for _, dep := range g.Nodes[id].DependsOn {
			fmt.Fprintf(&b, "%s --> %s\n", s.bindAliasLocked(dep), s.bindAliasLocked(id))
		}
	}
	b.WriteString("@enduml\n")

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating graph directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("writing graph file: %w", err)
	}

	s.graph = g.Clone()
	return nil
}

// bindAliasLocked returns the alias for id, minting one from the id prefix
// when no binding exists. Caller must hold s.mu.
func (s *Store) bindAliasLocked(id string) string {
	if alias, ok := s.idToAlias[id]; ok {
		return alias
	}
	alias := id
	if len(alias) > 8 {
		alias = alias[:8]
	}
	alias = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, alias)
	s.idToAlias[id] = alias
	s.aliasToID[alias] = id
	return alias
}

// Graph returns a consistent snapshot of the current typed graph.
func (s *Store) Graph() *Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// LastParse returns the most recent parse result for diagnostics, or nil if
// the store has never loaded.
func (s *Store) LastParse() *ParseResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// IDFor returns the stable id bound to an alias.
func (s *Store) IDFor(alias string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.aliasToID[alias]
	return id, ok
}

// AliasFor returns the alias bound to a stable id.
func (s *Store) AliasFor(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alias, ok := s.idToAlias[id]
	return alias, ok
}

// Bind records an explicit alias-to-id binding, overriding minting. Used
// when an item already exists in the repository under a known id.
func (s *Store) Bind(alias, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliasToID[alias] = id
	s.idToAlias[id] = alias
}

// Watch starts a file watcher that reloads the graph when the file changes
// on disk. Close stops the watcher.
func (s *Store) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating graph watcher: %w", err)
	}
	// Watch the directory: editors often replace the file via rename, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching graph directory: %w", err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		var timer *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				// Debounce: editors fire bursts of events per save.
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(100*time.Millisecond, func() {
					if err := s.Load(); err != nil {
						debug.Logf("graph: reload after file change failed: %v\n", err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				debug.Logf("graph: watcher error: %v\n", err)
			case <-s.done:
				return
			}
		}
	}()

	return nil
}

// Close stops the file watcher if one is running.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
