package media_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/extensions/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// roleGuard reads the role from X-Role instead of checking credentials.
func roleGuard(rt bananabit.DispatchRoute) fiber.Handler {
	if !rt.RequiresAuth {
		return nil
	}
	adminOnly := rt.AdminOnly
	return func(c *fiber.Ctx) error {
		role := c.Get("X-Role")
		if role == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": fiber.Map{"code": "AUTHENTICATION_REQUIRED"}})
		}
		if adminOnly && role != "admin" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": fiber.Map{"code": "ADMIN_REQUIRED"}})
		}
		return c.Next()
	}
}

func setup(t *testing.T, opts ...media.Option) (*media.Extension, *bananabit.Composition, *fiber.App) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "uploads")
	base := []media.Option{
		media.WithLogger(bananabit.NopLogger()),
		media.WithUploadDir(dir),
		media.WithClock(func() time.Time { return fixedNow }),
	}
	ext := media.New(append(base, opts...)...)
	registry := bananabit.NewRegistry(bananabit.WithRegistryLogger(bananabit.NopLogger()))
	require.NoError(t, registry.Register(context.Background(), ext))
	require.NoError(t, registry.ActivateAll(context.Background()))

	composition, err := registry.Compose()
	require.NoError(t, err)

	app := fiber.New()
	composition.Routes.Mount(app, roleGuard)
	return ext, composition, app
}

func send(t *testing.T, app *fiber.App, req *http.Request, role string) (*http.Response, []byte) {
	t.Helper()
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	return typedUploadRequest(t, filename, "", content)
}

// typedUploadRequest declares contentType for the file part when it is set.
func typedUploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	var (
		part io.Writer
		err  error
	)
	if contentType == "" {
		part, err = w.CreateFormFile("file", filename)
	} else {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err = w.CreatePart(h)
	}
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("alt_text", "A banana"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/media", body)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func TestAccepted(t *testing.T) {
	assert.True(t, media.Accepted("image/png"))
	assert.True(t, media.Accepted("video/mp4"))
	assert.True(t, media.Accepted("application/pdf"))
	assert.False(t, media.Accepted("text/plain; charset=utf-8"))
	assert.False(t, media.Accepted("application/x-sh"))
	assert.False(t, media.Accepted(""))
}

func TestStoredName(t *testing.T) {
	a, b := media.StoredName("../../Photo.PNG", "image/png"), media.StoredName("photo.png", "image/png")
	assert.NotEqual(t, a, b)
	assert.Equal(t, ".png", filepath.Ext(a))
	assert.Equal(t, a, filepath.Base(a))

	assert.Equal(t, ".png", filepath.Ext(media.StoredName("x.html", "image/png")))
	assert.Equal(t, ".pdf", filepath.Ext(media.StoredName("report", "application/pdf")))
	assert.Equal(t, "", filepath.Ext(media.StoredName("x.html", "not a type")))
}

func TestExtension_InitCreatesUploadDir(t *testing.T) {
	ext, _, _ := setup(t)

	info, err := os.Stat(ext.UploadDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, 1, ext.Store().Len())
}

func TestExtension_List(t *testing.T) {
	_, _, app := setup(t)

	resp, _ := send(t, app, httptest.NewRequest(http.MethodGet, "/admin/media", nil), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, raw := send(t, app, httptest.NewRequest(http.MethodGet, "/admin/media", nil), "subscriber")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	files, _ := decode(t, raw)["media"].([]any)
	require.Len(t, files, 1)
	first, _ := files[0].(map[string]any)
	assert.Equal(t, "/uploads/bananabit-logo.png", first["url"])
	assert.Equal(t, "BananaBit CMS Logo", first["alt_text"])
}

func TestExtension_UploadServeDelete(t *testing.T) {
	ext, _, app := setup(t, media.WithoutSeed())
	content := []byte("\x89PNG\r\n\x1a\nnot really a png")

	resp, _ := send(t, app, uploadRequest(t, "banana.png", content), "subscriber")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := send(t, app, uploadRequest(t, "banana.png", content), "admin")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	created, _ := decode(t, raw)["media"].(map[string]any)
	assert.Equal(t, "banana.png", created["original_name"])
	assert.Equal(t, "image/png", created["mime_type"])
	assert.Equal(t, "A banana", created["alt_text"])
	assert.EqualValues(t, len(content), created["file_size"])

	stored, _ := created["filename"].(string)
	assert.NotEqual(t, "banana.png", stored)
	onDisk, err := os.ReadFile(filepath.Join(ext.UploadDir(), stored))
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)

	resp, raw = send(t, app, httptest.NewRequest(http.MethodGet, "/uploads/"+stored, nil), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, content, raw)

	id := strconv.Itoa(int(created["id"].(float64)))
	patch := httptest.NewRequest(http.MethodPatch, "/admin/media/"+id, bytes.NewReader([]byte(`{"alt_text":" Ripe "}`)))
	patch.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, raw = send(t, app, patch, "admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	updated, _ := decode(t, raw)["media"].(map[string]any)
	assert.Equal(t, "Ripe", updated["alt_text"])

	resp, _ = send(t, app, httptest.NewRequest(http.MethodDelete, "/admin/media/"+id, nil), "admin")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err = os.Stat(filepath.Join(ext.UploadDir(), stored))
	assert.True(t, os.IsNotExist(err))

	resp, _ = send(t, app, httptest.NewRequest(http.MethodGet, "/uploads/"+stored, nil), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = send(t, app, httptest.NewRequest(http.MethodDelete, "/admin/media/"+id, nil), "admin")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody, _ := decode(t, raw)["error"].(map[string]any)
	assert.Equal(t, media.TextCodeMediaNotFound, errBody["code"])
}

func TestExtension_UploadExtensionFollowsMimeType(t *testing.T) {
	ext, _, app := setup(t, media.WithoutSeed())
	content := []byte("<script>alert(1)</script>")

	resp, raw := send(t, app, typedUploadRequest(t, "x.html", "image/png", content), "admin")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	created, _ := decode(t, raw)["media"].(map[string]any)
	assert.Equal(t, "x.html", created["original_name"])
	assert.Equal(t, "image/png", created["mime_type"])

	stored, _ := created["filename"].(string)
	assert.Equal(t, ".png", filepath.Ext(stored))
	_, err := os.Stat(filepath.Join(ext.UploadDir(), stored))
	require.NoError(t, err)

	resp, raw = send(t, app, httptest.NewRequest(http.MethodGet, "/uploads/"+stored, nil), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "nosniff", resp.Header.Get(fiber.HeaderXContentTypeOptions))
	assert.Equal(t, content, raw)
}

func TestExtension_UploadRejections(t *testing.T) {
	_, _, app := setup(t, media.WithMaxFileSize(16))

	resp, raw := send(t, app, uploadRequest(t, "notes.txt", []byte("hi")), "admin")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	errBody, _ := decode(t, raw)["error"].(map[string]any)
	assert.Equal(t, media.TextCodeUnsupportedType, errBody["code"])

	resp, raw = send(t, app, uploadRequest(t, "big.png", bytes.Repeat([]byte("x"), 64)), "admin")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody, _ = decode(t, raw)["error"].(map[string]any)
	assert.Equal(t, media.TextCodeInvalidUpload, errBody["code"])

	empty := httptest.NewRequest(http.MethodPost, "/admin/media", nil)
	resp, _ = send(t, app, empty, "admin")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExtension_ServeUnknown(t *testing.T) {
	_, _, app := setup(t)

	for _, target := range []string{"/uploads/missing.png", "/uploads/bananabit-logo.png", "/uploads/a/../b.png"} {
		resp, _ := send(t, app, httptest.NewRequest(http.MethodGet, target, nil), "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, target)
	}
}

func TestExtension_Components(t *testing.T) {
	_, composition, _ := setup(t)

	html, err := composition.Components.Render(context.Background(), "MediaLibrary", nil)
	require.NoError(t, err)
	assert.Contains(t, html, `src="/uploads/bananabit-logo.png"`)
	assert.Contains(t, html, "PNG &bull; 15.4 KB")

	html, err = composition.Components.Render(context.Background(), "MediaPicker", map[string]any{"type": "video/"})
	require.NoError(t, err)
	assert.Contains(t, html, "No media uploaded yet.")

	html, err = composition.Components.Render(context.Background(), "MediaPicker", map[string]any{"type": "image/"})
	require.NoError(t, err)
	assert.Contains(t, html, `data-url="/uploads/bananabit-logo.png"`)
}
