package auth

import (
	"encoding/base64"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	goerrors "github.com/goliatone/go-errors"
)

// IdentityKey is the fiber Locals key holding the authenticated Identity.
const IdentityKey = "bananabit.identity"

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// VerifyRequest payload
type VerifyRequest struct {
	Token string `form:"token" json:"token" query:"token"`
}

// Controller serves the auth routes as JSON endpoints.
type Controller struct {
	service *Service
	logger  bananabit.Logger
}

// NewController returns the HTTP controller for service.
func NewController(service *Service, logger bananabit.Logger) *Controller {
	if logger == nil {
		logger = bananabit.DefaultLogger("auth.http")
	}
	return &Controller{service: service, logger: logger}
}

// Register handles POST /register.
func (h *Controller) Register(c *fiber.Ctx) error {
	payload := new(RegisterAccountInput)
	if err := c.BodyParser(payload); err != nil {
		return WriteError(c, ErrInvalidRegistration(err))
	}

	account, err := h.service.RegisterAccount(c.UserContext(), *payload)
	if err != nil {
		if bananabit.HasTextCode(err, TextCodeVerificationEmailFailed) {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"account": account,
				"warning": errorBody(err),
			})
		}
		h.logger.Warn("registration rejected", "code", bananabit.TextCode(err))
		return WriteError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"account": account,
	})
}

// FirstAccount handles GET /register/first.
func (h *Controller) FirstAccount(c *fiber.Ctx) error {
	first, err := h.service.IsFirstAccount(c.UserContext())
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"first":            first,
		"captcha_question": h.service.Captcha().Question,
	})
}

// Verify handles GET and POST /verify-email.
func (h *Controller) Verify(c *fiber.Ctx) error {
	payload := new(VerifyRequest)
	if c.Method() == fiber.MethodGet {
		payload.Token = c.Query("token")
	} else if err := c.BodyParser(payload); err != nil {
		return WriteError(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid verification payload").
			WithCode(goerrors.CodeBadRequest))
	}

	account, err := h.service.VerifyAccount(c.UserContext(), payload.Token)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"account": account,
	})
}

// Login handles POST /login.
func (h *Controller) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return WriteError(c, ErrInvalidCredentials())
	}
	if err := payload.Validate(); err != nil {
		return WriteError(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload").
			WithCode(goerrors.CodeBadRequest))
	}

	identity, err := h.service.Authenticate(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return WriteError(c, err)
	}
	return c.JSON(fiber.Map{
		"identity": identity,
	})
}

// Admin handles GET /admin. The route guard has already checked the role.
func (h *Controller) Admin(c *fiber.Ctx) error {
	identity, _ := c.Locals(IdentityKey).(Identity)
	return c.JSON(fiber.Map{
		"identity": identity,
	})
}

// NewRouteGuard protects routes flagged RequiresAuth with HTTP basic
// credentials checked by service. AdminOnly routes also need the admin role.
func NewRouteGuard(service *Service) bananabit.RouteGuard {
	return func(rt bananabit.DispatchRoute) fiber.Handler {
		if !rt.RequiresAuth && !rt.AdminOnly {
			return nil
		}
		adminOnly := rt.AdminOnly

		return func(c *fiber.Ctx) error {
			email, password, ok := basicCredentials(c.Get(fiber.HeaderAuthorization))
			if !ok {
				c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="bananabit"`)
				return WriteError(c, ErrAuthenticationRequired())
			}

			identity, err := service.Authenticate(c.UserContext(), email, password)
			if err != nil {
				return WriteError(c, err)
			}
			if adminOnly && !identity.IsAdmin() {
				return WriteError(c, ErrAdminRequired())
			}

			c.Locals(IdentityKey, identity)
			return c.Next()
		}
	}
}

func basicCredentials(header string) (string, string, bool) {
	const prefix = "basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	email, password, ok := strings.Cut(string(raw), ":")
	if !ok || email == "" {
		return "", "", false
	}
	return email, password, true
}

// WriteError renders err as {"error": {"code", "message"}} with the status
// derived from the error code.
func WriteError(c *fiber.Ctx, err error) error {
	return c.Status(StatusCode(err)).JSON(fiber.Map{
		"error": errorBody(err),
	})
}

func errorBody(err error) fiber.Map {
	body := fiber.Map{
		"code":    "INTERNAL_ERROR",
		"message": "internal server error",
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return body
	}

	if code := bananabit.TextCode(err); code != "" {
		body["code"] = code
	}
	if StatusCode(err) < fiber.StatusInternalServerError || rich.TextCode != "" {
		body["message"] = rich.Message
	}

	var fields validation.Errors
	if goerrors.As(err, &fields) {
		body["fields"] = validationErrorsToMap(fields)
	}
	return body
}

func validationErrorsToMap(errs validation.Errors) map[string]string {
	out := make(map[string]string, len(errs))
	for field, err := range errs {
		if err != nil {
			out[field] = err.Error()
		}
	}
	return out
}
