package bananabit

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"sync"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

// TemplateSet renders django templates loaded from a file system. Template
// names are paths relative to the root without the extension.
type TemplateSet struct {
	mu     sync.Mutex
	engine *django.Engine
}

// NewTemplateSet loads every .html template found in fsys.
func NewTemplateSet(fsys fs.FS) (*TemplateSet, error) {
	engine := django.NewFileSystem(http.FS(fsys), ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load templates")
	}
	return &TemplateSet{engine: engine}, nil
}

// MustTemplateSet is NewTemplateSet that panics on error.
func MustTemplateSet(fsys fs.FS) *TemplateSet {
	ts, err := NewTemplateSet(fsys)
	if err != nil {
		panic(err)
	}
	return ts
}

// Render executes the named template with data.
func (t *TemplateSet) Render(name string, data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	if err := t.engine.Render(&buf, name, data); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("failed to render template %q", name)).
			WithMetadata(map[string]any{
				"template": name,
			})
	}
	return buf.String(), nil
}

// Renderer returns a component renderer bound to the named template. The
// component properties are merged over defaults.
func (t *TemplateSet) Renderer(name string, defaults func(ctx context.Context) map[string]any) RenderFunc {
	return func(ctx context.Context, props map[string]any) (string, error) {
		data := map[string]any{}
		if defaults != nil {
			for k, v := range defaults(ctx) {
				data[k] = v
			}
		}
		for k, v := range props {
			data[k] = v
		}
		return t.Render(name, data)
	}
}
