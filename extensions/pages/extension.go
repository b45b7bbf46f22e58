package pages

import (
	"context"
	"embed"
	"io/fs"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.pages"
	ExtensionName    = "Static Pages"
	ExtensionVersion = "1.0.0"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Extension serves static pages under /pages.
type Extension struct {
	bananabit.Info
	store     *Store
	seed      bool
	templates *bananabit.TemplateSet
	logger    bananabit.Logger
}

type Option func(*Extension)

func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithoutSeed skips the about and contact pages added by Init.
func WithoutSeed() Option {
	return func(e *Extension) {
		e.seed = false
	}
}

func New(opts ...Option) *Extension {
	e := &Extension{
		Info: bananabit.Info{
			ExtensionID:      ExtensionID,
			ExtensionName:    ExtensionName,
			ExtensionVersion: ExtensionVersion,
		},
		store:  NewStore(),
		seed:   true,
		logger: bananabit.DefaultLogger(ExtensionID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *Extension) Store() *Store {
	return e.store
}

func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open page templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if !e.seed || e.store.Len() > 0 {
		return nil
	}
	for _, p := range samplePages() {
		if _, err := e.store.Add(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/pages", Name: "pages.list", Handler: e.list},
		{Method: fiber.MethodGet, Path: "/pages/:slug", Name: "pages.show", Handler: e.show},
	}
}

func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "PageView", Description: "Static page view", Renderer: e.renderPage},
		{Key: "PageList", Description: "Navigation list of pages", Renderer: e.renderList},
	}
}

func (e *Extension) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"pages": e.store.Published(),
	})
}

func (e *Extension) show(c *fiber.Ctx) error {
	page, err := e.store.BySlug(c.Params("slug"))
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"page": page,
	})
}

func (e *Extension) renderPage(_ context.Context, props map[string]any) (string, error) {
	slug, _ := props["slug"].(string)
	page, err := e.store.BySlug(slug)
	if err != nil {
		return "", err
	}
	return e.render("page_view", map[string]any{
		"page": map[string]any{
			"slug":     page.Slug,
			"title":    page.Title,
			"content":  page.Content,
			"template": page.Template,
		},
	})
}

func (e *Extension) renderList(context.Context, map[string]any) (string, error) {
	pages := e.store.Published()
	items := make([]map[string]any, 0, len(pages))
	for _, p := range pages {
		items = append(items, map[string]any{
			"title": p.Title,
			"url":   "/pages/" + p.Slug,
		})
	}
	return e.render("page_list", map[string]any{"pages": items})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("pages extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func samplePages() []Page {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []Page{
		{
			Slug:      "about",
			Title:     "About BananaBit CMS",
			Author:    "Admin",
			CreatedAt: created,
			Published: true,
			Content: "# About BananaBit CMS\n\n" +
				"BananaBit CMS is an extension based content management system.\n",
		},
		{
			Slug:      "contact",
			Title:     "Contact Us",
			Author:    "Admin",
			CreatedAt: created,
			Published: true,
			Content: "# Contact Us\n\n" +
				"General inquiries: hello@bananabit.cms\n",
		},
	}
}
