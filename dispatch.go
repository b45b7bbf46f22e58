package bananabit

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DispatchRoute is a composed route resolved to its owning extension.
type DispatchRoute struct {
	Method       string
	Path         string
	Pattern      string
	Name         string
	Owner        string
	Handler      fiber.Handler
	RequiresAuth bool
	AdminOnly    bool
}

// RouteGuard returns the middleware protecting route, or nil when the route
// is public.
type RouteGuard func(route DispatchRoute) fiber.Handler

// DispatchTable is the merged, collision free route table.
type DispatchTable struct {
	routes []DispatchRoute
}

// Routes returns the routes in contribution order.
func (t *DispatchTable) Routes() []DispatchRoute {
	return append([]DispatchRoute(nil), t.routes...)
}

// Len returns the number of routes.
func (t *DispatchTable) Len() int {
	return len(t.routes)
}

// Match resolves a request method and path to a route and its parameters.
func (t *DispatchTable) Match(method, path string) (DispatchRoute, map[string]string, bool) {
	method = strings.ToUpper(method)
	path = NormalizePath(path)
	if path == "" {
		path = "/"
	}

	for _, rt := range t.routes {
		if rt.Method != "" && rt.Method != method {
			continue
		}
		if params, ok := matchSegments(rt.Path, path); ok {
			return rt, params, true
		}
	}
	return DispatchRoute{}, nil, false
}

// Mount registers every route on router. When guard is not nil, routes
// that require authentication get the handler it returns in front.
func (t *DispatchTable) Mount(router fiber.Router, guard RouteGuard) {
	for _, rt := range t.routes {
		handlers := make([]fiber.Handler, 0, 2)
		if guard != nil && rt.RequiresAuth {
			if mw := guard(rt); mw != nil {
				handlers = append(handlers, mw)
			}
		}
		handlers = append(handlers, rt.Handler)

		path := fiberPath(rt.Path)
		var r fiber.Router
		if rt.Method == "" {
			r = router.All(path, handlers...)
		} else {
			r = router.Add(rt.Method, path, handlers...)
		}
		if rt.Name != "" {
			r.Name(rt.Name)
		}
	}
}
