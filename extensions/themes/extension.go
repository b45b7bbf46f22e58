package themes

import (
	"context"
	"embed"
	"io/fs"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.themes"
	ExtensionName    = "Theme System"
	ExtensionVersion = "1.0.0"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Extension manages site themes and serves the active stylesheet.
type Extension struct {
	bananabit.Info
	store     *Store
	seed      bool
	templates *bananabit.TemplateSet
	logger    bananabit.Logger
}

// Option customizes the themes extension.
type Option func(*Extension)

// WithLogger sets the extension logger.
func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore replaces the theme store.
func WithStore(store *Store) Option {
	return func(e *Extension) {
		if store != nil {
			e.store = store
		}
	}
}

// WithoutSeed skips the built in themes added by Init.
func WithoutSeed() Option {
	return func(e *Extension) {
		e.seed = false
	}
}

// New returns the themes extension.
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

// Store returns the theme store.
func (e *Extension) Store() *Store {
	return e.store
}

// Init loads the templates and adds the built in themes to an empty store.
func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open theme templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if !e.seed || e.store.Len() > 0 {
		return nil
	}
	for _, t := range builtinThemes() {
		if _, err := e.store.Add(t); err != nil {
			return err
		}
	}
	e.logger.Info("built in themes added", "count", e.store.Len())
	return nil
}

// Routes implements bananabit.RouteContributor.
func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/theme.css", Name: "themes.stylesheet", Handler: e.stylesheet},
		{Method: fiber.MethodGet, Path: "/admin/themes", Name: "themes.list", Handler: e.list, AdminOnly: true},
		{Method: fiber.MethodPost, Path: "/admin/themes", Name: "themes.create", Handler: e.create, AdminOnly: true},
		{Method: fiber.MethodPost, Path: "/admin/themes/:id/activate", Name: "themes.activate", Handler: e.activate, AdminOnly: true},
		{Method: fiber.MethodDelete, Path: "/admin/themes/:id", Name: "themes.delete", Handler: e.remove, AdminOnly: true},
	}
}

// Components implements bananabit.ComponentContributor.
func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "ThemeManager", Description: "Theme management interface", Renderer: e.renderManager},
		{Key: "ThemeSelector", Description: "Theme selection dropdown", Renderer: e.renderSelector},
	}
}

func (e *Extension) stylesheet(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/css; charset=utf-8")
	theme, ok := e.store.Active()
	if !ok {
		return c.SendString("")
	}
	return c.SendString(theme.CSS)
}

func (e *Extension) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"themes": e.store.List(),
	})
}

func (e *Extension) create(c *fiber.Ctx) error {
	payload := new(Theme)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid theme payload").
			WithTextCode(TextCodeInvalidTheme).
			WithCode(goerrors.CodeBadRequest))
	}

	theme, err := e.store.Add(*payload)
	if err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("theme added", "theme", theme.ID, "active", theme.Active)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"theme": theme,
	})
}

func (e *Extension) activate(c *fiber.Ctx) error {
	theme, err := e.store.Activate(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("theme activated", "theme", theme.ID)
	return c.JSON(fiber.Map{
		"theme": theme,
	})
}

func (e *Extension) remove(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := e.store.Delete(id); err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("theme deleted", "theme", id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (e *Extension) renderManager(_ context.Context, _ map[string]any) (string, error) {
	return e.render("theme_manager", map[string]any{"themes": e.views()})
}

func (e *Extension) renderSelector(_ context.Context, _ map[string]any) (string, error) {
	return e.render("theme_selector", map[string]any{"themes": e.views()})
}

func (e *Extension) views() []map[string]any {
	list := e.store.List()
	out := make([]map[string]any, 0, len(list))
	for _, t := range list {
		out = append(out, map[string]any{
			"id":          t.ID,
			"name":        t.Name,
			"description": t.Description,
			"active":      t.Active,
		})
	}
	return out
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("themes extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func builtinThemes() []Theme {
	return []Theme{
		{
			ID:          "dark-professional",
			Name:        "Dark Professional",
			Description: "A sleek dark theme with professional aesthetics",
			Active:      true,
			CSS: ":root { --bg-primary: #0f172a; --bg-secondary: #1e293b; --text-primary: #f1f5f9; " +
				"--text-secondary: #cbd5e1; --accent: #3b82f6; --border: #334155; }\n" +
				"body { background: var(--bg-primary); color: var(--text-primary); }\n",
		},
		{
			ID:          "light-professional",
			Name:        "Light Professional",
			Description: "A clean light theme with modern design",
			CSS: ":root { --bg-primary: #ffffff; --bg-secondary: #f8fafc; --text-primary: #1e293b; " +
				"--text-secondary: #64748b; --accent: #3b82f6; --border: #e2e8f0; }\n" +
				"body { background: var(--bg-primary); color: var(--text-primary); }\n",
		},
		{
			ID:          "vibrant-colors",
			Name:        "Vibrant Colors",
			Description: "A colorful theme with gradients and animations",
			CSS: ":root { --bg-primary: linear-gradient(135deg, #667eea 0%, #764ba2 100%); " +
				"--text-primary: #ffffff; --accent: #fbbf24; --border: rgba(255, 255, 255, 0.2); }\n" +
				"body { background: var(--bg-primary); color: var(--text-primary); }\n",
		},
	}
}
