package bananabit

import (
	"fmt"
	"strings"
)

// Composition is the merged output of the active extensions.
type Composition struct {
	Routes     *DispatchTable
	Components *ComponentRegistry
}

// ComposeOption customizes Compose.
type ComposeOption func(*composer)

// WithComposeLogger sets the logger used to report override decisions.
func WithComposeLogger(logger Logger) ComposeOption {
	return func(c *composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type composer struct {
	logger Logger
}

// Compose merges the routes and components contributed by exts, in order.
// It fails on the first route or component key collision.
func Compose(exts []Extension, opts ...ComposeOption) (*Composition, error) {
	c := &composer{logger: DefaultLogger("composer")}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	table, err := c.composeRoutes(exts)
	if err != nil {
		return nil, err
	}

	components, err := c.composeComponents(exts)
	if err != nil {
		return nil, err
	}

	return &Composition{Routes: table, Components: components}, nil
}

func (c *composer) composeRoutes(exts []Extension) (*DispatchTable, error) {
	table := &DispatchTable{}

	for _, ext := range exts {
		rc, ok := ext.(RouteContributor)
		if !ok {
			continue
		}
		owner := ext.ID()

		for _, rt := range rc.Routes() {
			path := NormalizePath(rt.Path)
			if path == "" {
				return nil, ErrInvalidRoute(owner, rt.Path, "path is empty")
			}
			if rt.Handler == nil {
				return nil, ErrInvalidRoute(owner, path, "handler is nil")
			}
			method := strings.ToUpper(strings.TrimSpace(rt.Method))

			for _, existing := range table.routes {
				if !PatternsCollide(existing.Path, path) {
					continue
				}
				if existing.Owner != owner {
					return nil, ErrRouteCollision(path, existing.Owner, owner)
				}
				if existing.Method == "" || method == "" || existing.Method == method {
					return nil, ErrRouteCollision(path, owner, owner)
				}
			}

			table.routes = append(table.routes, DispatchRoute{
				Method:       method,
				Path:         path,
				Pattern:      PatternKey(path),
				Name:         rt.Name,
				Owner:        owner,
				Handler:      rt.Handler,
				RequiresAuth: rt.RequiresAuth || rt.AdminOnly,
				AdminOnly:    rt.AdminOnly,
			})
		}
	}

	return table, nil
}

func (c *composer) composeComponents(exts []Extension) (*ComponentRegistry, error) {
	reg := newComponentRegistry()

	for _, ext := range exts {
		cc, ok := ext.(ComponentContributor)
		if !ok {
			continue
		}
		owner := ext.ID()
		seen := map[string]bool{}

		for _, comp := range cc.Components() {
			key := strings.TrimSpace(comp.Key)
			if key == "" {
				return nil, ErrInvalidComponent(owner, comp.Key, "key is empty")
			}
			if comp.Renderer == nil {
				return nil, ErrInvalidComponent(owner, key, "renderer is nil")
			}
			if seen[key] {
				return nil, ErrComponentKeyCollision(key, owner, owner, "key declared twice by the same extension")
			}
			seen[key] = true

			current, exists := reg.entries[key]
			switch {
			case !exists:
				if comp.Overrides != "" {
					c.logger.Warn("component override target not found",
						"key", key, "extension", owner, "overrides", comp.Overrides)
				}
			case comp.Overrides == "":
				return nil, ErrComponentKeyCollision(key, current.Owner, owner, "override not declared")
			case comp.Overrides != current.Owner:
				return nil, ErrComponentKeyCollision(key, current.Owner, owner,
					fmt.Sprintf("override names %q", comp.Overrides))
			default:
				reg.overrides = append(reg.overrides, Override{
					Key:         key,
					Replaced:    current.Owner,
					Replacement: owner,
				})
				c.logger.Info("component overridden", "key", key, "replaced", current.Owner, "replacement", owner)
			}

			reg.put(RegisteredComponent{
				Key:         key,
				Description: comp.Description,
				Owner:       owner,
				Renderer:    comp.Renderer,
			})
		}
	}

	return reg, nil
}
