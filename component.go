package bananabit

import (
	"context"
)

// RegisteredComponent is a component resolved to its owning extension.
type RegisteredComponent struct {
	Key         string
	Description string
	Owner       string
	Renderer    RenderFunc
}

// Override records an accepted cross extension component replacement.
type Override struct {
	Key         string `json:"key"`
	Replaced    string `json:"replaced"`
	Replacement string `json:"replacement"`
}

// ComponentRegistry maps component keys to their renderers. It is read only
// once composed.
type ComponentRegistry struct {
	order     []string
	entries   map[string]RegisteredComponent
	overrides []Override
}

func newComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{entries: map[string]RegisteredComponent{}}
}

func (r *ComponentRegistry) put(c RegisteredComponent) {
	if _, exists := r.entries[c.Key]; !exists {
		r.order = append(r.order, c.Key)
	}
	r.entries[c.Key] = c
}

// Lookup returns the component registered under key.
func (r *ComponentRegistry) Lookup(key string) (RegisteredComponent, bool) {
	c, ok := r.entries[key]
	return c, ok
}

// Keys returns the registered keys in first contribution order.
func (r *ComponentRegistry) Keys() []string {
	return append([]string(nil), r.order...)
}

// Overrides returns the accepted overrides in the order they were decided.
func (r *ComponentRegistry) Overrides() []Override {
	return append([]Override(nil), r.overrides...)
}

// Render renders the component registered under key.
func (r *ComponentRegistry) Render(ctx context.Context, key string, props map[string]any) (string, error) {
	c, ok := r.entries[key]
	if !ok {
		return "", ErrComponentNotFound(key)
	}
	if props == nil {
		props = map[string]any{}
	}
	return c.Renderer(ctx, props)
}
