package analytics

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ExtensionID      = "core.analytics"
	ExtensionName    = "Performance Analytics"
	ExtensionVersion = "1.0.0"
)

//go:embed templates/*.html
var templatesFS embed.FS

// untrackedPrefixes are never counted as page views by the middleware.
var untrackedPrefixes = []string{"/admin", "/analytics", "/uploads", "/healthz", "/theme.css"}

// Extension counts page views and custom metrics and reports daily traffic.
type Extension struct {
	bananabit.Info
	store     *Store
	seed      bool
	now       func() time.Time
	templates *bananabit.TemplateSet
	logger    bananabit.Logger
}

// Option customizes the analytics extension.
type Option func(*Extension)

// WithLogger sets the extension logger.
func WithLogger(logger bananabit.Logger) Option {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore replaces the analytics store.
func WithStore(store *Store) Option {
	return func(e *Extension) {
		if store != nil {
			e.store = store
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

// WithoutSeed skips the sample traffic added by Init.
func WithoutSeed() Option {
	return func(e *Extension) {
		e.seed = false
	}
}

// New returns the analytics extension.
func New(opts ...Option) *Extension {
	e := &Extension{
		Info: bananabit.Info{
			ExtensionID:      ExtensionID,
			ExtensionName:    ExtensionName,
			ExtensionVersion: ExtensionVersion,
		},
		store:  NewStore(DefaultCapacity),
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

// Store returns the analytics store.
func (e *Extension) Store() *Store {
	return e.store
}

// Init loads the templates and adds sample traffic to an empty store.
func (e *Extension) Init(ctx context.Context) error {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open analytics templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if !e.seed || e.store.Len() > 0 {
		return nil
	}
	for _, v := range sampleViews(e.now().UTC()) {
		if err := e.store.Track(v); err != nil {
			return err
		}
	}
	e.logger.Info("sample traffic added", "views", e.store.Len())
	return nil
}

// Middleware records a page view for every GET answered without error,
// except on the paths in untrackedPrefixes.
func (e *Extension) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := e.now()
		err := c.Next()

		if err != nil || c.Method() != fiber.MethodGet || c.Response().StatusCode() >= fiber.StatusBadRequest || !tracked(c.Path()) {
			return err
		}
		view := PageView{
			URL:       c.Path(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
			Referrer:  c.Get(fiber.HeaderReferer),
			Visitor:   visitorKey(c),
			At:        start.UTC(),
			Duration:  e.now().Sub(start),
		}
		if trackErr := e.store.Track(view); trackErr != nil {
			e.logger.Warn("page view not recorded", "url", view.URL, "error", trackErr)
		}
		return err
	}
}

func tracked(path string) bool {
	for _, prefix := range untrackedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func visitorKey(c *fiber.Ctx) string {
	return c.IP() + "|" + c.Get(fiber.HeaderUserAgent)
}

// Routes implements bananabit.RouteContributor.
func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodPost, Path: "/analytics/pageviews", Name: "analytics.track", Handler: e.track},
		{Method: fiber.MethodGet, Path: "/admin/analytics", Name: "analytics.dashboard", Handler: e.dashboard, RequiresAuth: true},
		{Method: fiber.MethodPost, Path: "/admin/analytics/metrics", Name: "analytics.metric", Handler: e.metric, AdminOnly: true},
	}
}

// Components implements bananabit.ComponentContributor.
func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{Key: "AnalyticsDashboard", Description: "Daily traffic summary", Renderer: e.renderDashboard},
		{Key: "TrafficChart", Description: "Hourly page views", Renderer: e.renderChart},
	}
}

// PageViewInput is the payload of POST /analytics/pageviews.
type PageViewInput struct {
	URL        string `json:"url" form:"url"`
	Title      string `json:"title" form:"title"`
	Referrer   string `json:"referrer" form:"referrer"`
	DurationMS int64  `json:"duration_ms" form:"duration_ms"`
}

// MetricInput is the payload of POST /admin/analytics/metrics.
type MetricInput struct {
	Name  string            `json:"name"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags"`
}

func (e *Extension) track(c *fiber.Ctx) error {
	payload := new(PageViewInput)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid page view payload").
			WithTextCode(TextCodeInvalidPageView).
			WithCode(goerrors.CodeBadRequest))
	}

	err := e.store.Track(PageView{
		URL:       payload.URL,
		Title:     payload.Title,
		Referrer:  payload.Referrer,
		UserAgent: c.Get(fiber.HeaderUserAgent),
		Visitor:   visitorKey(c),
		At:        e.now().UTC(),
		Duration:  time.Duration(payload.DurationMS) * time.Millisecond,
	})
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (e *Extension) metric(c *fiber.Ctx) error {
	payload := new(MetricInput)
	if err := c.BodyParser(payload); err != nil {
		return auth.WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid metric payload").
			WithTextCode(TextCodeInvalidMetric).
			WithCode(goerrors.CodeBadRequest))
	}

	m := Metric{Name: payload.Name, Value: payload.Value, Tags: payload.Tags, At: e.now().UTC()}
	if err := e.store.Record(m); err != nil {
		return auth.WriteError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"metric": m,
	})
}

func (e *Extension) dashboard(c *fiber.Ctx) error {
	day, err := e.day(c.Query("date"))
	if err != nil {
		return auth.WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"stats":   e.store.Daily(day),
		"metrics": e.store.Metrics(c.Query("metric"), day),
	})
}

// day parses a YYYY-MM-DD date and defaults to today.
func (e *Extension) day(raw string) (time.Time, error) {
	if raw == "" {
		return e.now().UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryBadInput, fmt.Sprintf("invalid date %q", raw)).
			WithTextCode(TextCodeInvalidDate).
			WithCode(goerrors.CodeBadRequest)
	}
	return day, nil
}

func (e *Extension) propDay(props map[string]any) (time.Time, error) {
	raw, _ := props["date"].(string)
	return e.day(raw)
}

func (e *Extension) renderDashboard(_ context.Context, props map[string]any) (string, error) {
	day, err := e.propDay(props)
	if err != nil {
		return "", err
	}
	stats := e.store.Daily(day)

	pages := make([]map[string]any, 0, len(stats.TopPages))
	for _, p := range stats.TopPages {
		pages = append(pages, map[string]any{"url": p.URL, "views": p.Views})
	}
	return e.render("analytics_dashboard", map[string]any{
		"date":            stats.Date,
		"total_views":     stats.TotalViews,
		"unique_visitors": stats.UniqueVisitors,
		"avg_duration":    stats.AvgDuration.Round(time.Millisecond).String(),
		"top_pages":       pages,
	})
}

func (e *Extension) renderChart(_ context.Context, props map[string]any) (string, error) {
	day, err := e.propDay(props)
	if err != nil {
		return "", err
	}
	stats := e.store.Daily(day)

	peak := 0
	for _, n := range stats.Hourly {
		peak = max(peak, n)
	}
	bars := make([]map[string]any, 0, len(stats.Hourly))
	for hour, n := range stats.Hourly {
		height := 0
		if peak > 0 {
			height = n * 100 / peak
		}
		bars = append(bars, map[string]any{
			"hour":   fmt.Sprintf("%02d", hour),
			"views":  n,
			"height": height,
		})
	}
	return e.render("traffic_chart", map[string]any{
		"date": stats.Date,
		"bars": bars,
	})
}

func (e *Extension) render(name string, data map[string]any) (string, error) {
	if e.templates == nil {
		return "", goerrors.New("analytics extension is not initialized", goerrors.CategoryOperation)
	}
	return e.templates.Render(name, data)
}

func sampleViews(now time.Time) []PageView {
	pages := []struct{ url, title string }{
		{"/", "Home"},
		{"/posts", "Blog"},
		{"/posts/welcome-to-bananabit-cms", "Welcome to BananaBit CMS"},
		{"/posts/extension-architecture", "Understanding the Extension Architecture"},
		{"/pages/about", "About"},
	}
	agents := []string{"Mozilla/5.0 (X11; Linux x86_64)", "Mozilla/5.0 (Macintosh)", "Mozilla/5.0 (iPhone)"}

	views := make([]PageView, 0, 50)
	for i := 0; i < 50; i++ {
		p := pages[i%len(pages)]
		agent := agents[i%len(agents)]
		views = append(views, PageView{
			URL:       p.url,
			Title:     p.title,
			UserAgent: agent,
			Visitor:   fmt.Sprintf("sample-%d|%s", i%7, agent),
			At:        now.Add(-time.Duration(i) * time.Minute),
			Duration:  time.Duration(30+i*5) * time.Second,
		})
	}
	return views
}
