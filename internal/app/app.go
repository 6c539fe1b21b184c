// Package app wires the build tool together: it loads the manifest through
// a config.Loader, builds the action graph, and runs it through the graph
// engine with the local executor.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/forgebuild/internal/config"
	"github.com/vk/forgebuild/internal/ctxlog"
)

// App encapsulates the tool's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	model  *config.Model
}

// New constructs the application: it configures an isolated logger and
// loads the manifest into the format-agnostic model. Loading failures are
// returned, not fatal, so the CLI can render them with a proper exit code.
func New(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	logger.Debug("Manifest loaded into unified model.", "actions", len(model.Actions), "groups", len(model.Groups))

	return &App{outW: outW, logger: logger, model: model}, nil
}

// Model returns the loaded manifest model. Primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}
