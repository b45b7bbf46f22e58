package media

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.media"
	ExtensionName    = "Media Management"
	ExtensionVersion = "1.0.0"

	DefaultUploadDir = "uploads"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Extension stores uploaded files under an upload directory and serves
// them from /uploads.
type Extension struct {
	bananabit.Info
	store       *Store
	uploadDir   string
	maxFileSize int64
	seed        bool
	now         func() time.Time
	templates   *bananabit.TemplateSet
	logger      bananabit.Logger
}

type Option func(*Extension)

func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithUploadDir sets where uploads are written. Init creates it.
func WithUploadDir(dir string) Option {
	return func(e *Extension) {
		if dir != "" {
			e.uploadDir = dir
		}
	}
}

func WithMaxFileSize(n int64) Option {
	return func(e *Extension) {
		if n > 0 {
			e.maxFileSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		if now != nil {
			e.now = now
		}
	}
}

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
		store:       NewStore(),
		uploadDir:   DefaultUploadDir,
		maxFileSize: DefaultMaxFileSize,
		seed:        true,
		now:         time.Now,
		logger:      bananabit.DefaultLogger(ExtensionID),
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

func (e *Extension) UploadDir() string {
	return e.uploadDir
}

func (e *Extension) Init(ctx context.Context) error {
	if err := os.MkdirAll(e.uploadDir, 0o755); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create upload directory").
			WithMetadata(map[string]any{
				"upload_dir": e.uploadDir,
			})
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open media templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if e.seed && e.store.Len() == 0 {
		e.store.Add(File{
			Filename:     "bananabit-logo.png",
			OriginalName: "logo.png",
			MimeType:     "image/png",
			Size:         15432,
			UploadedAt:   e.now().UTC(),
			AltText:      "BananaBit CMS Logo",
		})
	}
	e.logger.Debug("media ready", "upload_dir", e.uploadDir, "files", e.store.Len())
	return nil
}

func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/admin/media", Name: "media.list", Handler: e.list, RequiresAuth: true},
		{Method: fiber.MethodPost, Path: "/admin/media", Name: "media.upload", Handler: e.upload, AdminOnly: true},
		{Method: fiber.MethodPatch, Path: "/admin/media/:id", Name: "media.update", Handler: e.update, AdminOnly: true},
		{Method: fiber.MethodDelete, Path: "/admin/media/:id", Name: "media.delete", Handler: e.remove, AdminOnly: true},
		{Method: fiber.MethodGet, Path: "/uploads/*", Name: "media.serve", Handler: e.serve},
	}
}

func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "MediaLibrary", Description: "Browse and manage uploaded media files", Renderer: e.renderLibrary},
		{Key: "MediaPicker", Description: "Select media files for content", Renderer: e.renderPicker},
	}
}

type fileView struct {
	File
	URL string `json:"url"`
}

func views(files []File) []fileView {
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, fileView{File: f, URL: f.URL()})
	}
	return out
}

func (e *Extension) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"media": views(e.store.List()),
	})
}

func (e *Extension) upload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return auth.WriteError(c, ErrInvalidUpload("missing file field"))
	}
	if header.Size > e.maxFileSize {
		return auth.WriteError(c, ErrInvalidUpload(fmt.Sprintf("file exceeds %d bytes", e.maxFileSize)))
	}

	mimeType := header.Header.Get(fiber.HeaderContentType)
	if mimeType == "" || mimeType == fiber.MIMEOctetStream {
		if guess := mime.TypeByExtension(filepath.Ext(header.Filename)); guess != "" {
			mimeType = guess
		}
	}
	if !Accepted(mimeType) {
		return auth.WriteError(c, ErrUnsupportedType(mimeType))
	}

	stored := StoredName(header.Filename, mimeType)
	if err := c.SaveFile(header, filepath.Join(e.uploadDir, stored)); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store upload"))
	}

	file := File{
		Filename:     stored,
		OriginalName: filepath.Base(header.Filename),
		MimeType:     mimeType,
		Size:         header.Size,
		UploadedAt:   e.now().UTC(),
		AltText:      c.FormValue("alt_text"),
	}
	if identity, ok := c.Locals(auth.IdentityKey).(auth.Identity); ok {
		id := identity.ID
		file.UploadedBy = &id
	}
	file = e.store.Add(file)

	e.logger.Info("media uploaded", "media_id", file.ID, "filename", file.Filename, "size", file.Size)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"media": fileView{File: file, URL: file.URL()},
	})
}

type updateInput struct {
	AltText string `json:"alt_text" form:"alt_text"`
}

func (e *Extension) update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, ErrMediaNotFound(c.Params("id")))
	}
	payload := new(updateInput)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, ErrInvalidUpload("invalid payload"))
	}
	file, err := e.store.SetAltText(id, payload.AltText)
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"media": fileView{File: file, URL: file.URL()},
	})
}

func (e *Extension) remove(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, ErrMediaNotFound(c.Params("id")))
	}
	file, err := e.store.Delete(id)
	if err != nil {
		return auth.WriteError(c, err)
	}
	if err := os.Remove(filepath.Join(e.uploadDir, file.Filename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.logger.Warn("failed to remove media file", "media_id", id, "error", err)
	}
	e.logger.Info("media deleted", "media_id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (e *Extension) serve(c *fiber.Ctx) error {
	name := c.Params("*")
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return auth.WriteError(c, ErrMediaNotFound(fmt.Sprintf("%q", name)))
	}

	file, err := e.store.ByFilename(name)
	if err != nil {
		return auth.WriteError(c, err)
	}
	path := filepath.Join(e.uploadDir, file.Filename)
	if _, err := os.Stat(path); err != nil {
		return auth.WriteError(c, ErrMediaNotFound(fmt.Sprintf("%q", name)))
	}

	if err := c.SendFile(path); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, file.MimeType)
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	return nil
}

func (e *Extension) renderLibrary(context.Context, map[string]any) (string, error) {
	return e.render("media_library", map[string]any{"files": templateFiles(e.store.List())})
}

func (e *Extension) renderPicker(_ context.Context, props map[string]any) (string, error) {
	files := e.store.List()
	if filter, _ := props["type"].(string); filter != "" {
		kept := files[:0]
		for _, f := range files {
			if strings.HasPrefix(f.MimeType, filter) {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	return e.render("media_picker", map[string]any{"files": templateFiles(files)})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("media extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func templateFiles(files []File) []map[string]any {
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"id":       f.ID,
			"filename": f.Filename,
			"url":      f.URL(),
			"alt":      f.AltText,
			"size":     humanSize(f.Size),
			"kind":     kind(f.MimeType),
			"is_image": strings.HasPrefix(f.MimeType, "image/"),
		})
	}
	return out
}

func kind(mimeType string) string {
	_, sub, ok := strings.Cut(mimeType, "/")
	if !ok {
		return "File"
	}
	return strings.ToUpper(sub)
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1000:
		return fmt.Sprintf("%.1f KB", float64(n)/1000)
	}
	return fmt.Sprintf("%d B", n)
}
