package bananabit_test

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type testExtension struct {
	bananabit.Info
	initErr     error
	shutdownErr error
	routes      []bananabit.Route
	components  []bananabit.Component
	rec         *recorder
}

func newTestExtension(id string) *testExtension {
	return &testExtension{Info: bananabit.Info{ExtensionID: id, ExtensionName: id, ExtensionVersion: "0.1.0"}}
}

func (e *testExtension) Init(context.Context) error {
	e.rec.add("init:" + e.ID())
	return e.initErr
}

func (e *testExtension) Shutdown(context.Context) error {
	e.rec.add("shutdown:" + e.ID())
	return e.shutdownErr
}

func (e *testExtension) Routes() []bananabit.Route {
	return e.routes
}

func (e *testExtension) Components() []bananabit.Component {
	return e.components
}

func (e *testExtension) withRoute(method, path string) *testExtension {
	e.routes = append(e.routes, bananabit.Route{Method: method, Path: path, Handler: okHandler(e.ID())})
	return e
}

func (e *testExtension) withComponent(key, overrides string) *testExtension {
	owner := e.ID()
	e.components = append(e.components, bananabit.Component{
		Key:       key,
		Overrides: overrides,
		Renderer: func(context.Context, map[string]any) (string, error) {
			return owner + ":" + key, nil
		},
	})
	return e
}

func okHandler(body string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendString(body)
	}
}
