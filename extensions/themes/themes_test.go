package themes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/extensions/themes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// headerGuard admits admin routes when X-Admin is set.
func headerGuard(rt bananabit.DispatchRoute) fiber.Handler {
	if !rt.AdminOnly {
		return nil
	}
	return func(c *fiber.Ctx) error {
		if c.Get("X-Admin") == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": fiber.Map{"code": "FORBIDDEN"}})
		}
		return c.Next()
	}
}

func setup(t *testing.T, opts ...themes.Option) (*themes.Extension, *bananabit.Composition, *fiber.App) {
	t.Helper()

	ext := themes.New(append([]themes.Option{themes.WithLogger(bananabit.NopLogger())}, opts...)...)
	registry := bananabit.NewRegistry(bananabit.WithRegistryLogger(bananabit.NopLogger()))
	require.NoError(t, registry.Register(context.Background(), ext))
	require.NoError(t, registry.ActivateAll(context.Background()))

	composition, err := registry.Compose()
	require.NoError(t, err)

	app := fiber.New()
	composition.Routes.Mount(app, headerGuard)
	return ext, composition, app
}

func do(t *testing.T, app *fiber.App, method, target string, payload any, admin bool) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if admin {
		req.Header.Set("X-Admin", "1")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestStore_SingleActiveTheme(t *testing.T) {
	store := themes.NewStore()

	_, err := store.Add(themes.Theme{ID: "a", Name: "A", CSS: "a{}", Active: true})
	require.NoError(t, err)
	_, err = store.Add(themes.Theme{ID: "b", Name: "B", CSS: "b{}", Active: true})
	require.NoError(t, err)

	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, "b", active.ID, "adding an active theme replaces the active one")

	_, err = store.Activate("a")
	require.NoError(t, err)
	count := 0
	for _, th := range store.List() {
		if th.Active {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, err = store.Add(themes.Theme{ID: "a", Name: "Again", CSS: "x{}"})
	assert.True(t, bananabit.HasTextCode(err, themes.TextCodeDuplicateTheme))
	_, err = store.Add(themes.Theme{ID: "Bad Id", Name: "x", CSS: "x{}"})
	assert.True(t, bananabit.HasTextCode(err, themes.TextCodeInvalidTheme))
	_, err = store.Activate("missing")
	assert.True(t, bananabit.HasTextCode(err, themes.TextCodeThemeNotFound))

	require.NoError(t, store.Delete("a"))
	_, ok = store.Active()
	assert.False(t, ok, "deleting the active theme leaves none active")
	assert.True(t, bananabit.HasTextCode(store.Delete("a"), themes.TextCodeThemeNotFound))
}

func TestExtension_SeedsBuiltinThemes(t *testing.T) {
	ext, _, _ := setup(t)
	assert.Equal(t, 3, ext.Store().Len())

	active, ok := ext.Store().Active()
	require.True(t, ok)
	assert.Equal(t, "Dark Professional", active.Name)
}

func TestExtension_Routes(t *testing.T) {
	ext, _, app := setup(t)

	resp, raw := do(t, app, http.MethodGet, "/theme.css", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), "text/css")
	assert.Contains(t, string(raw), "#0f172a")

	resp, _ = do(t, app, http.MethodGet, "/admin/themes", nil, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/admin/themes/light-professional/activate", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, raw = do(t, app, http.MethodGet, "/theme.css", nil, false)
	assert.Contains(t, string(raw), "#ffffff")

	resp, _ = do(t, app, http.MethodPost, "/admin/themes",
		themes.Theme{ID: "solarized", Name: "Solarized", CSS: "body{color:#657b83}", Active: true}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_, raw = do(t, app, http.MethodGet, "/theme.css", nil, false)
	assert.Equal(t, "body{color:#657b83}", string(raw))

	resp, raw = do(t, app, http.MethodPost, "/admin/themes", themes.Theme{ID: "empty", Name: "Empty"}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(raw), themes.TextCodeInvalidTheme)

	resp, _ = do(t, app, http.MethodDelete, "/admin/themes/solarized", nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, raw = do(t, app, http.MethodGet, "/theme.css", nil, false)
	assert.Empty(t, raw)

	resp, raw = do(t, app, http.MethodPost, "/admin/themes/solarized/activate", nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(raw), themes.TextCodeThemeNotFound)

	resp, raw = do(t, app, http.MethodGet, "/admin/themes", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := map[string][]themes.Theme{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Len(t, body["themes"], ext.Store().Len())
}

func TestExtension_Components(t *testing.T) {
	_, composition, _ := setup(t)
	ctx := context.Background()

	html, err := composition.Components.Render(ctx, "ThemeManager", nil)
	require.NoError(t, err)
	assert.Contains(t, html, "Vibrant Colors")
	assert.Contains(t, html, `action="/admin/themes/light-professional/activate"`)
	assert.NotContains(t, html, `action="/admin/themes/dark-professional/activate"`, "active theme has no activate button")

	html, err = composition.Components.Render(ctx, "ThemeSelector", nil)
	require.NoError(t, err)
	assert.Contains(t, html, `<option value="dark-professional" selected>`)

	_, composition, _ = setup(t, themes.WithoutSeed())
	html, err = composition.Components.Render(ctx, "ThemeManager", nil)
	require.NoError(t, err)
	assert.Contains(t, html, "No themes installed.")
}
