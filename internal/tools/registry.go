package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Registry errors.
var (
	// ErrDuplicateName rejects a second registration under an existing name.
	ErrDuplicateName = errors.New("tools: duplicate tool name")

	// ErrUnknownTool reports a lookup for a name nothing registered.
	ErrUnknownTool = errors.New("tools: unknown tool")
)

// Registry holds the set of tools available to the agent, keyed by unique
// name. Registration happens at startup; lookups are concurrent-safe.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. A name collision returns ErrDuplicateName and leaves
// the existing registration untouched.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.tools[name] = t
	return nil
}

// Get looks a tool up by name, returning ErrUnknownTool when nothing is
// registered under it.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// List returns all registered tools in stable name order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, len(names))
	for i, name := range names {
		out[i] = r.tools[name]
	}
	return out
}

// Infos returns the Eino tool metadata for every registered tool, in stable
// name order, ready to hand to model.WithTools.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	list := r.List()
	infos := make([]*schema.ToolInfo, 0, len(list))
	for _, t := range list {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tools: info for %s: %w", t.Name(), err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
