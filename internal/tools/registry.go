package tools

import (
	"context"
	"log"
	"sort"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
)

// NativeTool is a tool served in-process, without an MCP round trip.
type NativeTool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds the native tools. Registration is fail-fast: a
// duplicate name is a startup bug, not a runtime condition.
type Registry struct {
	tools map[string]NativeTool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]NativeTool)}
}

func (r *Registry) Register(tool NativeTool) error {
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return domain.Errorf(domain.KindConfig, "%w: %s", domain.ErrToolAlreadyExists, name)
	}
	r.tools[name] = tool
	log.Printf("[Registry.Register] tool registered: name=%s", name)
	return nil
}

// MustRegister panics on duplicates; used during startup wiring.
func (r *Registry) MustRegister(tools ...NativeTool) {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Get(name string) (NativeTool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Descriptors returns LLM-facing descriptors sorted by name.
func (r *Registry) Descriptors() []models.ToolDescriptor {
	descriptors := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		descriptors = append(descriptors, models.ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})
	return descriptors
}
