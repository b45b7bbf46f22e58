package posts

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.posts"
	ExtensionName    = "Posts"
	ExtensionVersion = "1.0.0"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Extension serves blog posts under /posts.
type Extension struct {
	bananabit.Info
	store     *Store
	seed      bool
	now       func() time.Time
	templates *bananabit.TemplateSet
	logger    bananabit.Logger
}

// Option customizes the posts extension.
type Option func(*Extension)

// WithLogger sets the extension logger.
func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore replaces the post store.
func WithStore(store *Store) Option {
	return func(e *Extension) {
		if store != nil {
			e.store = store
		}
	}
}

// WithClock injects a custom clock for save timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		if now != nil {
			e.now = now
		}
	}
}

// WithoutSeed skips the sample posts added by Init.
func WithoutSeed() Option {
	return func(e *Extension) {
		e.seed = false
	}
}

// New returns the posts extension.
func New(opts ...Option) *Extension {
	e := &Extension{
		Info: bananabit.Info{
			ExtensionID:      ExtensionID,
			ExtensionName:    ExtensionName,
			ExtensionVersion: ExtensionVersion,
		},
		store:  NewStore(),
		seed:   true,
		now:    time.Now,
		logger: bananabit.DefaultLogger(ExtensionID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Store returns the post store.
func (e *Extension) Store() *Store {
	return e.store
}

// Init loads the templates and adds the sample posts to an empty store.
func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open post templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if !e.seed || e.store.Len() > 0 {
		return nil
	}
	for _, p := range samplePosts() {
		if _, err := e.store.Add(p); err != nil {
			return err
		}
	}
	e.logger.Info("sample posts added", "count", e.store.Len())
	return nil
}

// Routes implements bananabit.RouteContributor.
func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/posts", Name: "posts.list", Handler: e.list},
		{Method: fiber.MethodGet, Path: "/posts/:slug", Name: "posts.show", Handler: e.show},
		{Method: fiber.MethodGet, Path: "/admin/posts", Name: "posts.admin", Handler: e.all, AdminOnly: true},
		{Method: fiber.MethodPost, Path: "/admin/posts", Name: "posts.save", Handler: e.save, AdminOnly: true},
		{Method: fiber.MethodDelete, Path: "/admin/posts/:id", Name: "posts.delete", Handler: e.remove, AdminOnly: true},
	}
}

// Components implements bananabit.ComponentContributor.
func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "PostView", Description: "Individual post view", Renderer: e.renderPost},
		{Key: "PostList", Description: "List of published posts", Renderer: e.renderList},
	}
}

func (e *Extension) list(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"posts": e.store.Published(),
	})
}

func (e *Extension) show(c *fiber.Ctx) error {
	post, err := e.store.BySlug(c.Params("slug"))
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"post": post,
	})
}

// PostInput is the payload of POST /admin/posts. A zero id creates a post.
type PostInput struct {
	ID        int    `json:"id" form:"id"`
	Slug      string `json:"slug" form:"slug"`
	Title     string `json:"title" form:"title"`
	Content   string `json:"content" form:"content"`
	Author    string `json:"author" form:"author"`
	Published bool   `json:"published" form:"published"`
}

// Save stores in and returns the saved post. An empty author falls back to
// fallbackAuthor.
func (e *Extension) Save(in PostInput, fallbackAuthor string) (Post, error) {
	author := strings.TrimSpace(in.Author)
	if author == "" {
		author = fallbackAuthor
	}

	created := in.ID == 0
	if !created {
		if _, ok := e.store.ByID(in.ID); !ok {
			return Post{}, ErrPostIDNotFound(in.ID)
		}
	}

	post, err := e.store.Save(Post{
		ID:        in.ID,
		Slug:      in.Slug,
		Title:     strings.TrimSpace(in.Title),
		Content:   in.Content,
		Author:    author,
		Published: in.Published,
	}, e.now().UTC())
	if err != nil {
		return Post{}, err
	}
	e.logger.Info("post saved", "post_id", post.ID, "slug", post.Slug, "created", created)
	return post, nil
}

// Apply runs a scheduled action against the post with id. Known actions are
// publish, unpublish and delete.
func (e *Extension) Apply(_ context.Context, action string, id int) error {
	switch action {
	case "publish", "unpublish":
		_, err := e.store.SetPublished(id, action == "publish", e.now().UTC())
		return err
	case "delete":
		return e.store.Delete(id)
	default:
		return goerrors.New(fmt.Sprintf("unsupported post action %q", action), goerrors.CategoryBadInput).
			WithTextCode(TextCodeInvalidPost).
			WithCode(goerrors.CodeBadRequest)
	}
}

func (e *Extension) all(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"posts": e.store.All(),
	})
}

func (e *Extension) save(c *fiber.Ctx) error {
	payload := new(PostInput)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid post payload").
			WithTextCode(TextCodeInvalidPost).
			WithCode(goerrors.CodeBadRequest))
	}

	identity, _ := c.Locals(auth.IdentityKey).(auth.Identity)
	post, err := e.Save(*payload, identity.Username)
	if err != nil {
		return auth.WriteError(c, err)
	}

	status := fiber.StatusOK
	if payload.ID == 0 {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"id":   post.ID,
		"post": post,
	})
}

func (e *Extension) remove(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, ErrPostIDNotFound(0))
	}
	if err := e.store.Delete(id); err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("post deleted", "post_id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

// renderPost expects a "slug" property.
func (e *Extension) renderPost(_ context.Context, props map[string]any) (string, error) {
	slug, _ := props["slug"].(string)
	post, err := e.store.BySlug(slug)
	if err != nil {
		return "", err
	}
	return e.render("post_view", map[string]any{"post": postView(post)})
}

func (e *Extension) renderList(_ context.Context, props map[string]any) (string, error) {
	limit, _ := props["limit"].(int)

	published := e.store.Published()
	if limit > 0 && len(published) > limit {
		published = published[:limit]
	}

	items := make([]map[string]any, 0, len(published))
	for _, p := range published {
		items = append(items, postView(p))
	}
	return e.render("post_list", map[string]any{"posts": items})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("posts extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func postView(p Post) map[string]any {
	return map[string]any{
		"slug":       p.Slug,
		"title":      p.Title,
		"content":    p.Content,
		"author":     p.Author,
		"created_at": p.CreatedAt.Format("January 2, 2006"),
		"url":        "/posts/" + p.Slug,
	}
}

func samplePosts() []Post {
	return []Post{
		{
			Slug:      "welcome-to-bananabit-cms",
			Title:     "Welcome to BananaBit CMS",
			Author:    "Admin",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Published: true,
			Content: "# Welcome to BananaBit CMS\n\n" +
				"BananaBit is a content management system where every feature is an extension.\n",
		},
		{
			Slug:      "extension-architecture",
			Title:     "Understanding the Extension Architecture",
			Author:    "Admin",
			CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Published: true,
			Content: "# Extension Architecture\n\n" +
				"- **Extensions** are self-contained modules that provide functionality\n" +
				"- **Routes** are URL endpoints handled by extensions\n" +
				"- **Components** are reusable UI elements\n",
		},
	}
}
