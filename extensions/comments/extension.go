package comments

import (
	"context"
	"embed"
	"io/fs"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.comments"
	ExtensionName    = "Comments System"
	ExtensionVersion = "1.0.0"
)

//go:embed templates/*.html
var templatesFS embed.FS

// PostLookup reports whether a published post has slug.
type PostLookup func(slug string) bool

// Extension lets readers comment on posts. New comments wait for an admin
// to approve them.
type Extension struct {
	bananabit.Info
	store     *Store
	posts     PostLookup
	seed      bool
	now       func() time.Time
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

// WithPostLookup rejects comments on posts lookup does not know.
func WithPostLookup(lookup PostLookup) Option {
	return func(e *Extension) {
		e.posts = lookup
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

func (e *Extension) Store() *Store {
	return e.store
}

func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open comment templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if !e.seed || e.store.Len() > 0 {
		return nil
	}
	for _, c := range sampleComments() {
		if _, err := e.store.Add(c); err != nil {
			return err
		}
	}
	return nil
}

func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/posts/:slug/comments", Name: "comments.list", Handler: e.list},
		{Method: fiber.MethodPost, Path: "/posts/:slug/comments", Name: "comments.create", Handler: e.create},
		{Method: fiber.MethodGet, Path: "/admin/comments", Name: "comments.pending", Handler: e.pending, AdminOnly: true},
		{Method: fiber.MethodPost, Path: "/admin/comments/:id/approve", Name: "comments.approve", Handler: e.approve, AdminOnly: true},
	}
}

func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "CommentSection", Description: "Comment section for posts", Renderer: e.renderSection},
		{Key: "CommentForm", Description: "Form for submitting comments", Renderer: e.renderForm},
	}
}

// CommentInput is the payload of POST /posts/:slug/comments.
type CommentInput struct {
	Author  string `json:"author" form:"author"`
	Email   string `json:"email" form:"email"`
	Content string `json:"content" form:"content"`
}

// Submit stores a comment on slug pending approval.
func (e *Extension) Submit(slug string, in CommentInput) (Comment, error) {
	if e.posts != nil && !e.posts(slug) {
		return Comment{}, ErrPostNotFound(slug)
	}
	comment, err := e.store.Add(Comment{
		PostSlug:  slug,
		Author:    in.Author,
		Email:     in.Email,
		Content:   in.Content,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return Comment{}, err
	}
	e.logger.Info("comment submitted", "post", slug, "comment_id", comment.ID)
	return comment, nil
}

func (e *Extension) list(c *fiber.Ctx) error {
	slug := c.Params("slug")
	if e.posts != nil && !e.posts(slug) {
		return auth.WriteError(c, ErrPostNotFound(slug))
	}
	return c.JSON(fiber.Map{
		"comments": e.store.ForPost(slug),
	})
}

func (e *Extension) create(c *fiber.Ctx) error {
	payload := new(CommentInput)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid comment payload").
			WithTextCode(TextCodeInvalidComment).
			WithCode(goerrors.CodeBadRequest))
	}

	comment, err := e.Submit(c.Params("slug"), *payload)
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"comment": comment,
		"message": "Thank you for your comment! It will be reviewed before being published.",
	})
}

func (e *Extension) pending(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"comments": e.store.Pending(),
	})
}

func (e *Extension) approve(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, ErrCommentNotFound(0))
	}
	comment, err := e.store.Approve(id)
	if err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("comment approved", "comment_id", id)
	return c.JSON(fiber.Map{
		"comment": comment,
	})
}

func (e *Extension) renderSection(_ context.Context, props map[string]any) (string, error) {
	slug, _ := props["post_slug"].(string)
	list := e.store.ForPost(slug)

	items := make([]map[string]any, 0, len(list))
	for _, c := range list {
		items = append(items, map[string]any{
			"author":     c.Author,
			"content":    c.Content,
			"created_at": c.CreatedAt.Format("January 2, 2006"),
		})
	}
	return e.render("comment_section", map[string]any{"comments": items})
}

func (e *Extension) renderForm(_ context.Context, props map[string]any) (string, error) {
	slug, _ := props["post_slug"].(string)
	return e.render("comment_form", map[string]any{
		"action": "/posts/" + slug + "/comments",
	})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("comments extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func sampleComments() []Comment {
	const slug = "welcome-to-bananabit-cms"
	return []Comment{
		{
			PostSlug:  slug,
			Author:    "John Doe",
			Email:     "john@example.com",
			Content:   "Great post! I love the extension architecture approach. It makes the CMS very flexible.",
			CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			Approved:  true,
		},
		{
			PostSlug:  slug,
			Author:    "Jane Smith",
			Email:     "jane@example.com",
			Content:   "I agree! Looking forward to seeing how this develops.",
			CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
			Approved:  true,
		},
	}
}
