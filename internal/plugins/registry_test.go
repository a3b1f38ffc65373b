package plugins

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Boelensman1/beancount-support/pkg/api"
)

type stubPlugin struct{ name string }

func (p stubPlugin) Name() string                 { return p.name }
func (p stubPlugin) Description() string          { return "stub" }
func (p stubPlugin) Extension() string            { return "" }
func (p stubPlugin) ConfigSchema() map[string]any { return nil }
func (p stubPlugin) NewWriter(context.Context, json.RawMessage, *slog.Logger) (api.Writer, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"json", "csv"} {
		if err := r.RegisterWriter(stubPlugin{name: name}); err != nil {
			t.Fatalf("RegisterWriter(%s): %v", name, err)
		}
	}

	if err := r.RegisterWriter(stubPlugin{name: "csv"}); err == nil {
		t.Error("expected error registering csv twice")
	}

	if _, err := r.GetWriter("csv"); err != nil {
		t.Errorf("GetWriter(csv): %v", err)
	}
	if _, err := r.GetWriter("sheets"); err == nil {
		t.Error("expected error for unknown plugin")
	}
	if _, err := r.CreateWriter(context.Background(), "sheets", nil, nil); err == nil {
		t.Error("CreateWriter: expected error for unknown plugin")
	}

	list := r.ListWriters()
	if len(list) != 2 || list[0].Name() != "csv" || list[1].Name() != "json" {
		t.Errorf("ListWriters: got %v", list)
	}
}
