package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/elephantgerald/bartleby-sub001/internal/ai"
	"github.com/elephantgerald/bartleby-sub001/internal/config"
	"github.com/elephantgerald/bartleby-sub001/internal/graph"
	"github.com/elephantgerald/bartleby-sub001/internal/tracker"
	"github.com/elephantgerald/bartleby-sub001/internal/tracker/github"
)

// buildSource constructs the tracker source from settings.
func buildSource(settings *config.AppSettings) (tracker.Source, error) {
	if err := settings.Tracker.Validate(); err != nil {
		return nil, fmt.Errorf("tracker configuration: %w", err)
	}
	client := github.NewClient(settings.Tracker.Token, settings.Tracker.Owner, settings.Tracker.Repo)
	return github.NewSource(client), nil
}

// buildProvider constructs the AI provider from settings.
func buildProvider(settings *config.AppSettings) (ai.Provider, error) {
	return ai.NewAnthropicProvider(settings.AI.APIKey, settings.AI.Model)
}

// graphFilePath resolves the graph file relative to the project dir.
func graphFilePath(settings *config.AppSettings) string {
	path := settings.GraphFilePath
	if path == "" {
		path = "graph.puml"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	return path
}

// loadGraphStore loads (and optionally watches) the graph file.
func loadGraphStore(settings *config.AppSettings, watch bool) (*graph.Store, error) {
	gs := graph.NewStore(graphFilePath(settings))
	if err := gs.Load(); err != nil {
		return nil, fmt.Errorf("loading graph file: %w", err)
	}
	if watch {
		if err := gs.Watch(); err != nil {
			return nil, fmt.Errorf("watching graph file: %w", err)
		}
	}
	return gs, nil
}

// currentSettings loads settings through the manager.
func currentSettings(ctx context.Context) (*config.AppSettings, error) {
	return cfg.Get(ctx)
}
