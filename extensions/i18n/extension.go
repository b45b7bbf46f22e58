package i18n

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
	ExtensionID      = "core.i18n"
	ExtensionName    = "Multi-language Support"
	ExtensionVersion = "1.0.0"

	// LanguageKey is the fiber Locals key holding the request language code.
	LanguageKey = "bananabit.language"
	// LangParam selects a language for one request and stores it in LangCookie.
	LangParam  = "lang"
	LangCookie = "bananabit_lang"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Extension serves translations and resolves the language of each request.
type Extension struct {
	bananabit.Info
	catalog   *Catalog
	seed      bool
	templates *bananabit.TemplateSet
	logger    bananabit.Logger
}

// Option customizes the i18n extension.
type Option func(*Extension)

// WithLogger sets the extension logger.
func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCatalog replaces the built in catalog.
func WithCatalog(catalog *Catalog) Option {
	return func(e *Extension) {
		if catalog != nil {
			e.catalog = catalog
			e.seed = false
		}
	}
}

// WithoutSeed starts with English only and no translations.
func WithoutSeed() Option {
	return func(e *Extension) {
		e.seed = false
	}
}

// New returns the i18n extension.
func New(opts ...Option) *Extension {
	e := &Extension{
		Info: bananabit.Info{
			ExtensionID:      ExtensionID,
			ExtensionName:    ExtensionName,
			ExtensionVersion: ExtensionVersion,
		},
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

// Catalog returns the translation catalog. It is nil before Init.
func (e *Extension) Catalog() *Catalog {
	return e.catalog
}

// Init loads the templates and builds the default catalog.
func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open i18n templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if e.catalog != nil {
		return nil
	}
	if e.catalog, err = NewCatalog(builtinLanguages()[0]); err != nil {
		return err
	}
	if !e.seed {
		return nil
	}
	for _, lang := range builtinLanguages()[1:] {
		if err := e.catalog.AddLanguage(lang); err != nil {
			return err
		}
	}
	for code, msgs := range builtinMessages() {
		if err := e.catalog.SetAll(code, msgs); err != nil {
			return err
		}
	}
	e.logger.Info("translations loaded", "languages", len(e.catalog.Languages()), "keys", len(e.catalog.Keys()))
	return nil
}

// Middleware stores the request language under LanguageKey. The lang query
// parameter wins and is remembered in a cookie, then the cookie, then
// Accept-Language.
func (e *Extension) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if e.catalog == nil {
			return c.Next()
		}

		var code string
		if q := c.Query(LangParam); q != "" {
			code = e.catalog.Match(q)
			c.Cookie(&fiber.Cookie{
				Name:     LangCookie,
				Value:    code,
				Path:     "/",
				Expires:  time.Now().Add(365 * 24 * time.Hour),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		} else {
			code = e.catalog.Match(c.Cookies(LangCookie), c.Get(fiber.HeaderAcceptLanguage))
		}
		c.Locals(LanguageKey, code)
		return c.Next()
	}
}

// RequestLanguage returns the language stored by Middleware or the
// fallback language.
func (e *Extension) RequestLanguage(c *fiber.Ctx) string {
	if code, ok := c.Locals(LanguageKey).(string); ok && code != "" {
		return code
	}
	return e.catalog.Default()
}

// Routes implements bananabit.RouteContributor.
func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/i18n/:lang", Name: "i18n.messages", Handler: e.messages},
		{Method: fiber.MethodGet, Path: "/admin/i18n", Name: "i18n.languages", Handler: e.languages, AdminOnly: true},
		{Method: fiber.MethodPost, Path: "/admin/i18n", Name: "i18n.add", Handler: e.addLanguage, AdminOnly: true},
		{Method: fiber.MethodPut, Path: "/admin/i18n/:lang/:key", Name: "i18n.translate", Handler: e.setMessage, AdminOnly: true},
	}
}

// Components implements bananabit.ComponentContributor.
func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "LanguageManager", Description: "Language management interface", Renderer: e.renderManager},
		{Key: "LanguageSelector", Description: "Language selection dropdown", Renderer: e.renderSelector},
		{Key: "TranslationEditor", Description: "Translation editing interface", Renderer: e.renderEditor},
	}
}

func (e *Extension) messages(c *fiber.Ctx) error {
	code := c.Params("lang")
	msgs, err := e.catalog.Messages(code)
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"language": code,
		"messages": msgs,
	})
}

func (e *Extension) languages(c *fiber.Ctx) error {
	type entry struct {
		Language
		Coverage int `json:"coverage"`
	}
	list := e.catalog.Languages()
	out := make([]entry, 0, len(list))
	for _, l := range list {
		out = append(out, entry{Language: l, Coverage: e.catalog.Coverage(l.Code)})
	}
	return c.JSON(fiber.Map{
		"default":   e.catalog.Default(),
		"languages": out,
	})
}

func (e *Extension) addLanguage(c *fiber.Ctx) error {
	payload := new(Language)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid language payload").
			WithTextCode(TextCodeInvalidLanguage).
			WithCode(goerrors.CodeBadRequest))
	}
	if err := e.catalog.AddLanguage(*payload); err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("language added", "language", payload.Code)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"language": payload.Code,
	})
}

func (e *Extension) setMessage(c *fiber.Ctx) error {
	payload := struct {
		Value string `json:"value" form:"value"`
	}{}
	if err := c.BodyParser(&payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid translation payload").
			WithTextCode(TextCodeInvalidMessage).
			WithCode(goerrors.CodeBadRequest))
	}

	code, key := c.Params("lang"), c.Params("key")
	if err := e.catalog.Set(code, key, payload.Value); err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"language": code,
		"key":      key,
		"value":    payload.Value,
	})
}

func (e *Extension) renderManager(_ context.Context, _ map[string]any) (string, error) {
	list := e.catalog.Languages()
	items := make([]map[string]any, 0, len(list))
	for _, l := range list {
		items = append(items, map[string]any{
			"code":        l.Code,
			"name":        l.Name,
			"native_name": l.NativeName,
			"coverage":    e.catalog.Coverage(l.Code),
			"default":     l.Code == e.catalog.Default(),
		})
	}
	return e.render("language_manager", map[string]any{"languages": items})
}

// renderSelector marks the "lang" property as selected.
func (e *Extension) renderSelector(_ context.Context, props map[string]any) (string, error) {
	current, _ := props["lang"].(string)
	if current == "" {
		current = e.catalog.Default()
	}
	list := e.catalog.Languages()
	items := make([]map[string]any, 0, len(list))
	for _, l := range list {
		items = append(items, map[string]any{
			"code":        l.Code,
			"native_name": l.NativeName,
			"selected":    l.Code == current,
		})
	}
	return e.render("language_selector", map[string]any{"languages": items, "param": LangParam})
}

// renderEditor lists every key for the "lang" property next to its
// fallback text.
func (e *Extension) renderEditor(_ context.Context, props map[string]any) (string, error) {
	code, _ := props["lang"].(string)
	if code == "" {
		code = e.catalog.Default()
	}
	if !e.catalog.Has(code) {
		return "", ErrLanguageNotFound(code)
	}

	fallback := e.catalog.Default()
	keys := e.catalog.Keys()
	rows := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		value, ok := e.catalog.Lookup(code, k)
		rows = append(rows, map[string]any{
			"key":     k,
			"source":  e.catalog.Translate(fallback, k),
			"value":   value,
			"missing": !ok,
		})
	}
	return e.render("translation_editor", map[string]any{
		"language": code,
		"rows":     rows,
	})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil || e.catalog == nil {
		return "", goerrors.New("i18n extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func builtinLanguages() []Language {
	return []Language{
		{Code: "en", Name: "English", NativeName: "English"},
		{Code: "es", Name: "Spanish", NativeName: "Español"},
		{Code: "fr", Name: "French", NativeName: "Français"},
	}
}

func builtinMessages() map[string]map[string]string {
	return map[string]map[string]string{
		"en": {
			"home": "Home", "blog": "Blog", "admin": "Admin", "settings": "Settings",
			"save": "Save", "cancel": "Cancel", "search": "Search",
		},
		"es": {
			"home": "Inicio", "blog": "Blog", "admin": "Administración", "settings": "Configuración",
			"save": "Guardar", "cancel": "Cancelar", "search": "Buscar",
		},
		"fr": {
			"home": "Accueil", "blog": "Blog", "admin": "Administration", "settings": "Paramètres",
			"save": "Enregistrer", "cancel": "Annuler",
		},
	}
}
