package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	"github.com/goliatone/go-bananabit/config"
	"github.com/goliatone/go-bananabit/extensions/analytics"
	"github.com/goliatone/go-bananabit/extensions/comments"
	"github.com/goliatone/go-bananabit/extensions/i18n"
	"github.com/goliatone/go-bananabit/extensions/media"
	"github.com/goliatone/go-bananabit/extensions/pages"
	"github.com/goliatone/go-bananabit/extensions/posts"
	"github.com/goliatone/go-bananabit/extensions/scheduling"
	"github.com/goliatone/go-bananabit/extensions/themes"
	"github.com/goliatone/go-bananabit/messaging"
	"github.com/goliatone/go-bananabit/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config    *config.Config
	bunDB     *bun.DB
	store     *repository.BunStore
	registry  *bananabit.Registry
	languages *i18n.Extension
	traffic   *analytics.Extension
	srv       router.Server[*fiber.App]
	logger    *glog.BaseLogger
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("app"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	cfg, err := config.Load()
	if err != nil {
		lgr.GetLogger("config").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg.Raw()))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		app.GetLogger("persistence").Error("failed to open database", "error", err)
		os.Exit(1)
	}

	if err := WithExtensions(ctx, app); err != nil {
		app.GetLogger("registry").Error("failed to activate extensions", "error", err)
		shutdown(app)
		os.Exit(1)
	}

	if err := WithHTTPServer(app); err != nil {
		app.GetLogger("http").Error("failed to compose routes", "error", err)
		shutdown(app)
		os.Exit(1)
	}

	go func() {
		if err := app.srv.Serve(cfg.HTTPAddr); err != nil {
			app.GetLogger("http").Error("server stopped", "error", err)
		}
	}()
	app.GetLogger("http").Info("listening", "addr", cfg.HTTPAddr)

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())
	shutdown(app)
}

func WithPersistence(ctx context.Context, app *App) error {
	sqldb, err := sql.Open(sqliteshim.ShimName, app.config.DatabaseDSN)
	if err != nil {
		return err
	}
	sqldb.SetMaxOpenConns(1)

	app.bunDB = bun.NewDB(sqldb, sqlitedialect.New())
	app.store = repository.NewBunStore(app.bunDB)
	return app.store.CreateSchema(ctx)
}

func newSender(app *App) messaging.Sender {
	cfg := app.config
	if cfg.MailDriver == config.MailDriverLog {
		return messaging.NewLogSender(app.GetLogger("mail"))
	}
	return messaging.NewSMTPSender(messaging.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Timeout:  cfg.EmailTimeout,
	})
}

func WithExtensions(ctx context.Context, app *App) error {
	cfg := app.config

	mailer, err := messaging.NewMailer(newSender(app),
		messaging.WithFrom(cfg.FromEmail, cfg.FromName),
		messaging.WithBaseURL(cfg.BaseURL),
		messaging.WithTokenTTL(cfg.TokenTTL),
		messaging.WithMailerLogger(app.GetLogger("mail")),
	)
	if err != nil {
		return err
	}

	service := auth.NewService(app.store, mailer, cfg,
		auth.WithServiceLogger(app.GetLogger("auth:svc")),
		auth.WithActivitySink(auth.NewLogActivitySink(app.GetLogger("auth:activity"))),
	)
	relay := auth.NewRelay(service.Dispatcher(), cfg,
		auth.WithRelayLogger(app.GetLogger("auth:relay")),
	)

	postsExt := posts.New(posts.WithLogger(app.GetLogger(posts.ExtensionID)))
	app.languages = i18n.New(i18n.WithLogger(app.GetLogger(i18n.ExtensionID)))
	app.traffic = analytics.New(analytics.WithLogger(app.GetLogger(analytics.ExtensionID)))

	app.registry = bananabit.NewRegistry(
		bananabit.WithRegistryLogger(app.GetLogger("registry")),
	)
	extensions := []bananabit.Extension{
		auth.NewExtension(service,
			auth.WithExtensionLogger(app.GetLogger(auth.ExtensionID)),
			auth.WithRelay(relay),
		),
		postsExt,
		pages.New(pages.WithLogger(app.GetLogger(pages.ExtensionID))),
		comments.New(
			comments.WithLogger(app.GetLogger(comments.ExtensionID)),
			comments.WithPostLookup(postsExt.Store().Exists),
		),
		media.New(
			media.WithLogger(app.GetLogger(media.ExtensionID)),
			media.WithUploadDir(cfg.UploadDir),
		),
		scheduling.New(
			scheduling.WithLogger(app.GetLogger(scheduling.ExtensionID)),
			scheduling.WithTarget(scheduling.ContentPost, func(ctx context.Context, action scheduling.Action, id int) error {
				return postsExt.Apply(ctx, string(action), id)
			}),
		),
		themes.New(themes.WithLogger(app.GetLogger(themes.ExtensionID))),
		app.traffic,
		app.languages,
	}
	for _, ext := range extensions {
		if err := app.registry.Register(ctx, ext); err != nil {
			return err
		}
	}

	return app.registry.ActivateAll(ctx)
}

func WithHTTPServer(app *App) error {
	composition, err := app.registry.Compose()
	if err != nil {
		return err
	}

	authExt, ok := app.registry.Get(auth.ExtensionID)
	if !ok {
		return goerrors.New("auth extension is not registered", goerrors.CategoryInternal)
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "BananaBit CMS",
			DisableStartupMessage: true,
		}))
	})
	srv.Router().WithLogger(app.GetLogger("router"))

	srv.Router().Get("/healthz", func(ctx router.Context) error {
		return ctx.JSON(router.StatusOK, map[string]any{
			"status":     "ok",
			"extensions": len(app.registry.Active()),
		})
	})

	srv.WrappedRouter().Use(app.languages.Middleware(), app.traffic.Middleware())
	composition.Routes.Mount(srv.WrappedRouter(), authExt.(*auth.Extension).RouteGuard())
	app.srv = srv

	app.GetLogger("registry").Info("composed",
		"routes", composition.Routes.Len(),
		"components", len(composition.Components.Keys()),
		"overrides", len(composition.Components.Overrides()),
	)
	return nil
}

func shutdown(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	if app.srv != nil {
		if err := app.srv.Shutdown(ctx); err != nil {
			app.GetLogger("http").Warn("server shutdown", "error", err)
		}
	}
	if app.registry != nil {
		if err := app.registry.ShutdownAll(ctx); err != nil {
			app.GetLogger("registry").Warn("extension shutdown", "error", err)
		}
	}
	if app.bunDB != nil {
		if err := app.bunDB.Close(); err != nil {
			app.GetLogger("persistence").Warn("database close", "error", err)
		}
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
