package scheduling

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.scheduling"
	ExtensionName    = "Content Scheduling"
	ExtensionVersion = "1.0.0"

	DefaultInterval = time.Minute
)

//go:embed templates/*.html
var templatesFS embed.FS

// Target applies a due action to the content with id.
type Target func(ctx context.Context, action Action, contentID int) error

// Extension runs scheduled publish, unpublish, delete and update actions
// against the content types that registered a Target.
type Extension struct {
	bananabit.Info
	store     *Store
	targets   map[ContentType]Target
	interval  time.Duration
	worker    bool
	seed      bool
	now       func() time.Time
	templates *bananabit.TemplateSet
	logger    bananabit.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes the scheduling extension.
type Option func(*Extension)

// WithLogger sets the extension logger.
func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore replaces the item store.
func WithStore(store *Store) Option {
	return func(e *Extension) {
		if store != nil {
			e.store = store
		}
	}
}

// WithTarget routes due items of ct to target.
func WithTarget(ct ContentType, target Target) Option {
	return func(e *Extension) {
		if target != nil {
			e.targets[ct] = target
		}
	}
}

// WithInterval sets how often due items are processed.
func WithInterval(d time.Duration) Option {
	return func(e *Extension) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) Option {
	return func(e *Extension) {
		if now != nil {
			e.now = now
		}
	}
}

// WithoutWorker disables background processing. Items still run through
// ProcessDue and RunNow.
func WithoutWorker() Option {
	return func(e *Extension) {
		e.worker = false
	}
}

// WithoutSeed skips the sample item added by Init.
func WithoutSeed() Option {
	return func(e *Extension) {
		e.seed = false
	}
}

// New returns the scheduling extension.
func New(opts ...Option) *Extension {
	e := &Extension{
		Info: bananabit.Info{
			ExtensionID:      ExtensionID,
			ExtensionName:    ExtensionName,
			ExtensionVersion: ExtensionVersion,
		},
		store:    NewStore(),
		targets:  map[ContentType]Target{},
		interval: DefaultInterval,
		worker:   true,
		seed:     true,
		now:      time.Now,
		logger:   bananabit.DefaultLogger(ExtensionID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Store returns the item store.
func (e *Extension) Store() *Store {
	return e.store
}

// Init loads the templates, seeds an empty store and starts the worker.
func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open scheduling templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if e.seed && e.store.Len() == 0 {
		now := e.now().UTC()
		if _, err := e.store.Schedule(Item{
			ContentType: ContentPost,
			ContentID:   1,
			Action:      ActionPublish,
			ScheduledAt: now.Add(24 * time.Hour),
			CreatedAt:   now,
			CreatedBy:   "admin",
		}); err != nil {
			return err
		}
	}

	if e.worker {
		e.start(context.WithoutCancel(ctx))
	}
	return nil
}

func (e *Extension) start(parent context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		e.logger.Info("scheduling worker started", "interval", e.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.ProcessDue(ctx)
			}
		}
	}()
}

// Shutdown stops the worker and waits for it, bounded by ctx.
func (e *Extension) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		e.logger.Info("scheduling worker stopped")
		return nil
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "timed out waiting for scheduling worker")
	}
}

// ProcessDue runs every pending item whose time has come and returns them
// with their final status.
func (e *Extension) ProcessDue(ctx context.Context) []Item {
	due := e.store.ClaimDue(e.now())
	out := make([]Item, 0, len(due))
	for _, item := range due {
		out = append(out, e.run(ctx, item))
	}
	if len(due) > 0 {
		e.logger.Info("scheduled items processed", "count", len(due))
	}
	return out
}

// RunNow runs the pending item with id regardless of its due time.
func (e *Extension) RunNow(ctx context.Context, id int) (Item, error) {
	item, err := e.store.Claim(id)
	if err != nil {
		return Item{}, err
	}
	return e.run(ctx, item), nil
}

func (e *Extension) run(ctx context.Context, item Item) Item {
	var runErr error
	if target, ok := e.targets[item.ContentType]; ok {
		runErr = target(ctx, item.Action, item.ContentID)
	} else {
		runErr = goerrors.New(fmt.Sprintf("no target handles %s content", item.ContentType), goerrors.CategoryOperation)
	}

	finished, err := e.store.Finish(item.ID, runErr, e.now().UTC())
	if err != nil {
		e.logger.Error("failed to record scheduled item outcome", "id", item.ID, "error", err)
		return item
	}
	if runErr != nil {
		e.logger.Warn("scheduled item failed",
			"id", item.ID, "content_type", item.ContentType, "content_id", item.ContentID, "action", item.Action, "error", runErr)
	} else {
		e.logger.Info("scheduled item completed",
			"id", item.ID, "content_type", item.ContentType, "content_id", item.ContentID, "action", item.Action)
	}
	return finished
}

// ScheduleInput is the payload of POST /admin/scheduling. ScheduledAt is
// RFC 3339 or the datetime-local form format, read as UTC.
type ScheduleInput struct {
	ContentType ContentType `json:"content_type" form:"content_type"`
	ContentID   int         `json:"content_id" form:"content_id"`
	Action      Action      `json:"action" form:"action"`
	ScheduledAt string      `json:"scheduled_at" form:"scheduled_at"`
}

var scheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04"}

func parseScheduledAt(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range scheduleLayouts {
		at, err := time.Parse(layout, raw)
		if err == nil {
			return at.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, goerrors.Wrap(lastErr, goerrors.CategoryValidation, fmt.Sprintf("invalid scheduled_at %q", raw)).
		WithTextCode(TextCodeInvalidSchedule).
		WithCode(goerrors.CodeBadRequest)
}

// Schedule stores in as a pending item created by author.
func (e *Extension) Schedule(in ScheduleInput, author string) (Item, error) {
	if author == "" {
		author = "system"
	}
	at, err := parseScheduledAt(in.ScheduledAt)
	if err != nil {
		return Item{}, err
	}
	item, err := e.store.Schedule(Item{
		ContentType: in.ContentType,
		ContentID:   in.ContentID,
		Action:      in.Action,
		ScheduledAt: at,
		CreatedAt:   e.now().UTC(),
		CreatedBy:   author,
	})
	if err != nil {
		return Item{}, err
	}
	e.logger.Info("content scheduled",
		"id", item.ID, "content_type", item.ContentType, "content_id", item.ContentID, "action", item.Action, "at", item.ScheduledAt)
	return item, nil
}

// Routes implements bananabit.RouteContributor.
func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodGet, Path: "/admin/scheduling", Name: "scheduling.list", Handler: e.list, RequiresAuth: true},
		{Method: fiber.MethodPost, Path: "/admin/scheduling", Name: "scheduling.create", Handler: e.create, AdminOnly: true},
		{Method: fiber.MethodDelete, Path: "/admin/scheduling/:id", Name: "scheduling.cancel", Handler: e.cancelItem, AdminOnly: true},
		{Method: fiber.MethodPost, Path: "/admin/scheduling/:id/run", Name: "scheduling.run", Handler: e.runItem, AdminOnly: true},
	}
}

// Components implements bananabit.ComponentContributor.
func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "SchedulingManager", Description: "Upcoming and past scheduled actions", Renderer: e.renderManager},
		{Key: "ScheduleForm", Description: "Form for scheduling an action", Renderer: e.renderForm},
		{Key: "SchedulingCalendar", Description: "Month view of scheduled actions", Renderer: e.renderCalendar},
	}
}

func (e *Extension) list(c *fiber.Ctx) error {
	items := e.store.List()
	if c.Query("status") == string(StatusPending) {
		items = e.store.Pending()
	}
	return c.JSON(fiber.Map{
		"items": items,
	})
}

func (e *Extension) create(c *fiber.Ctx) error {
	payload := new(ScheduleInput)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid schedule payload").
			WithTextCode(TextCodeInvalidSchedule).
			WithCode(goerrors.CodeBadRequest))
	}

	identity, _ := c.Locals(auth.IdentityKey).(auth.Identity)
	item, err := e.Schedule(*payload, identity.Username)
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"item": item,
	})
}

func (e *Extension) cancelItem(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, ErrScheduleNotFound(0))
	}
	if err := e.store.Cancel(id); err != nil {
		return auth.WriteError(c, err)
	}
	e.logger.Info("scheduled item cancelled", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (e *Extension) runItem(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return auth.WriteError(c, ErrScheduleNotFound(0))
	}
	item, err := e.RunNow(c.UserContext(), id)
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"item": item,
	})
}

func (e *Extension) renderManager(_ context.Context, _ map[string]any) (string, error) {
	var upcoming, history []map[string]any
	for _, item := range e.store.List() {
		if item.Status == StatusPending {
			upcoming = append(upcoming, itemView(item))
		} else {
			history = append(history, itemView(item))
		}
	}
	return e.render("scheduling_manager", map[string]any{
		"upcoming": upcoming,
		"history":  history,
	})
}

func (e *Extension) renderForm(_ context.Context, _ map[string]any) (string, error) {
	return e.render("schedule_form", map[string]any{
		"action":        "/admin/scheduling",
		"content_types": []string{string(ContentPost), string(ContentPage), string(ContentMedia)},
		"actions":       []string{string(ActionPublish), string(ActionUnpublish), string(ActionDelete), string(ActionUpdate)},
	})
}

// renderCalendar accepts "year" and "month" int properties and defaults to
// the current month.
func (e *Extension) renderCalendar(_ context.Context, props map[string]any) (string, error) {
	now := e.now().UTC()
	year, month := now.Year(), now.Month()
	if y, ok := props["year"].(int); ok && y > 0 {
		year = y
	}
	if m, ok := props["month"].(int); ok && m >= 1 && m <= 12 {
		month = time.Month(m)
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)

	counts := map[int]int{}
	for _, item := range e.store.Between(first, next) {
		counts[item.ScheduledAt.Day()]++
	}

	days := make([]map[string]any, 0, 31)
	for d := first; d.Before(next); d = d.AddDate(0, 0, 1) {
		days = append(days, map[string]any{
			"day":   d.Day(),
			"count": counts[d.Day()],
		})
	}
	return e.render("scheduling_calendar", map[string]any{
		"title":  first.Format("January 2006"),
		"offset": make([]struct{}, int(first.Weekday())),
		"days":   days,
	})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("scheduling extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func itemView(item Item) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"content_type": string(item.ContentType),
		"content_id":   item.ContentID,
		"action":       string(item.Action),
		"status":       string(item.Status),
		"scheduled_at": item.ScheduledAt.Format("Jan 2, 2006 15:04"),
		"created_by":   item.CreatedBy,
		"error":        item.Error,
	}
}
