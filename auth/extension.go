package auth

import (
	"context"
	"embed"
	"io/fs"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	ExtensionID      = "core.auth"
	ExtensionName    = "Authentication"
	ExtensionVersion = "1.0.0"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Extension delivers registration, verification and login as the core.auth
// extension.
type Extension struct {
	bananabit.Info
	service    *Service
	controller *Controller
	relay      *Relay
	templates  *bananabit.TemplateSet
	logger     bananabit.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// ExtensionOption customizes the auth extension.
type ExtensionOption func(*Extension)

// WithExtensionLogger sets the extension logger.
func WithExtensionLogger(logger bananabit.Logger) ExtensionOption {
	return func(e *Extension) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRelay runs relay in the background between Init and Shutdown.
func WithRelay(relay *Relay) ExtensionOption {
	return func(e *Extension) {
		e.relay = relay
	}
}

// NewExtension returns the auth extension backed by service.
func NewExtension(service *Service, opts ...ExtensionOption) *Extension {
	e := &Extension{
		Info: bananabit.Info{
			ExtensionID:      ExtensionID,
			ExtensionName:    ExtensionName,
			ExtensionVersion: ExtensionVersion,
		},
		service: service,
		logger:  bananabit.DefaultLogger(ExtensionID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.controller = NewController(service, e.logger)
	return e
}

// Service returns the account service.
func (e *Extension) Service() *Service {
	return e.service
}

// RouteGuard returns the guard protecting RequiresAuth and AdminOnly routes
// of every extension.
func (e *Extension) RouteGuard() bananabit.RouteGuard {
	return NewRouteGuard(e.service)
}

// Init loads the component templates and starts the outbox relay.
func (e *Extension) Init(ctx context.Context) error {
	if e.service == nil {
		return goerrors.New("auth service is required", goerrors.CategoryInternal)
	}

	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open auth templates")
	}
	if e.templates, err = bananabit.NewTemplateSet(sub); err != nil {
		return err
	}

	if e.relay != nil {
		e.startRelay(context.WithoutCancel(ctx))
	}
	return nil
}

func (e *Extension) startRelay(parent context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done

	go func() {
		defer close(done)
		e.logger.Info("outbox relay started")
		if err := e.relay.Run(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("outbox relay stopped", "error", err)
		}
	}()
}

// Shutdown stops the relay and waits for it, bounded by ctx.
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
		e.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "timed out waiting for outbox relay")
	}
}

// Routes implements bananabit.RouteContributor.
func (e *Extension) Routes() []bananabit.Route {
	return []bananabit.Route{
		{Method: fiber.MethodPost, Path: "/register", Name: "auth.register", Handler: e.controller.Register},
		{Method: fiber.MethodGet, Path: "/register/first", Name: "auth.register.first", Handler: e.controller.FirstAccount},
		{Method: fiber.MethodGet, Path: "/verify-email", Name: "auth.verify", Handler: e.controller.Verify},
		{Method: fiber.MethodPost, Path: "/verify-email", Name: "auth.verify.submit", Handler: e.controller.Verify},
		{Method: fiber.MethodPost, Path: "/login", Name: "auth.login", Handler: e.controller.Login},
		{Method: fiber.MethodGet, Path: "/admin", Name: "auth.admin", Handler: e.controller.Admin, AdminOnly: true},
	}
}

// Components implements bananabit.ComponentContributor.
func (e *Extension) Components() []bananabit.Component {
	return []bananabit.Component{
		{
			Key:         "LoginForm",
			Description: "Email and password login form",
			Renderer:    e.render("login_form", e.loginDefaults),
		},
		{
			Key:         "RegisterForm",
			Description: "Registration form with the security question",
			Renderer:    e.render("register_form", e.registerDefaults),
		},
		{
			Key:         "UserInfo",
			Description: "Name and role of an account",
			Renderer:    e.renderUserInfo,
		},
	}
}

func (e *Extension) render(name string, defaults func(context.Context) map[string]any) bananabit.RenderFunc {
	return func(ctx context.Context, props map[string]any) (string, error) {
		if e.templates == nil {
			return "", goerrors.New("auth extension is not initialized", goerrors.CategoryOperation)
		}
		return e.templates.Renderer(name, defaults)(ctx, props)
	}
}

func (e *Extension) loginDefaults(context.Context) map[string]any {
	return map[string]any{
		"action":       "/login",
		"register_url": "/register",
	}
}

func (e *Extension) registerDefaults(ctx context.Context) map[string]any {
	first, err := e.service.IsFirstAccount(ctx)
	if err != nil {
		e.logger.Warn("could not tell whether this is the first account", "error", err)
	}
	return map[string]any{
		"action":           "/register",
		"captcha_question": e.service.Captcha().Question,
		"first_account":    first,
	}
}

// renderUserInfo accepts either an "account" PublicAccount or an
// "account_id" property.
func (e *Extension) renderUserInfo(ctx context.Context, props map[string]any) (string, error) {
	var account *PublicAccount
	switch v := props["account"].(type) {
	case PublicAccount:
		account = &v
	case *PublicAccount:
		account = v
	}

	if account == nil {
		if raw, ok := props["account_id"].(string); ok && raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return "", goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid account id").
					WithCode(goerrors.CodeBadRequest)
			}
			found, err := e.service.FindAccount(ctx, id)
			if err != nil {
				return "", err
			}
			account = &found
		}
	}

	data := map[string]any{"login_url": "/login"}
	if account != nil {
		data["account"] = map[string]any{
			"username": account.Username,
			"role":     string(account.Role),
			"verified": account.VerificationState == StateVerified,
		}
	}
	return e.render("user_info", nil)(ctx, data)
}
