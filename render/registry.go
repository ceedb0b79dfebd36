package render

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	doorstep "github.com/goliatone/go-doorstep"
)

// Registry maps each step to the renderer that performs it.
type Registry struct {
	mu        sync.RWMutex
	renderers map[doorstep.Step]Renderer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[doorstep.Step]Renderer)}
}

// Register adds a renderer for step. Registering a step twice is an error.
func (r *Registry) Register(step doorstep.Step, renderer Renderer) error {
	if !step.Valid() {
		return doorstep.NewError(doorstep.ErrUnknownStep, fmt.Sprintf("cannot register renderer for %s", step), nil, nil)
	}
	if renderer == nil {
		return fmt.Errorf("renderer for %s is nil", step)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.renderers == nil {
		r.renderers = make(map[doorstep.Step]Renderer)
	}
	if _, exists := r.renderers[step]; exists {
		return fmt.Errorf("renderer for %s already registered", step)
	}
	r.renderers[step] = renderer
	return nil
}

// MustRegister is Register for wiring code; it panics on error.
func (r *Registry) MustRegister(step doorstep.Step, renderer Renderer) *Registry {
	if err := r.Register(step, renderer); err != nil {
		panic(err)
	}
	return r
}

// Lookup retrieves the renderer for step.
func (r *Registry) Lookup(step doorstep.Step) (Renderer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[step]
	return renderer, ok
}

// Steps returns registered steps in declaration order.
func (r *Registry) Steps() []doorstep.Step {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	steps := make([]doorstep.Step, 0, len(r.renderers))
	for s := range r.renderers {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}

// Validate fails when a step the table can produce has no renderer.
func (r *Registry) Validate(table doorstep.Table) error {
	var missing []string
	for _, step := range table.Steps() {
		if _, ok := r.Lookup(step); !ok {
			missing = append(missing, step.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return doorstep.NewError(
		doorstep.ErrUnknownStep,
		fmt.Sprintf("no renderer registered for %s", strings.Join(missing, ", ")),
		nil,
		map[string]any{"missing_steps": missing},
	)
}
