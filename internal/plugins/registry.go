// Package plugins provides a registry for the export writer plugins.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

// WriterPlugin defines the interface for export writer plugins.
type WriterPlugin interface {
	// Name returns the plugin name (e.g., "csv", "json", "postgres").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// Extension returns the output file extension, or "" when the plugin
	// does not write to a file.
	Extension() string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
	// NewWriter creates a new writer instance with the given config.
	NewWriter(ctx context.Context, config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Registry manages available writer plugins.
type Registry struct {
	writers map[string]WriterPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		writers: make(map[string]WriterPlugin),
	}
}

// RegisterWriter registers a writer plugin.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error {
	name := plugin.Name()
	if _, exists := r.writers[name]; exists {
		return fmt.Errorf("writer plugin %q already registered", name)
	}
	r.writers[name] = plugin
	return nil
}

// GetWriter returns a writer plugin by name.
func (r *Registry) GetWriter(name string) (WriterPlugin, error) {
	plugin, exists := r.writers[name]
	if !exists {
		return nil, fmt.Errorf("writer plugin %q not found", name)
	}
	return plugin, nil
}

// ListWriters returns all registered writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin {
	plugins := make([]WriterPlugin, 0, len(r.writers))
	for _, plugin := range r.writers {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name() < plugins[j].Name() })
	return plugins
}

// CreateWriter creates a writer instance from a plugin.
func (r *Registry) CreateWriter(ctx context.Context, name string, config json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewWriter(ctx, config, logger)
}
