package auth_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAuthApp(t *testing.T, f *fixture) *fiber.App {
	t.Helper()

	ext := auth.NewExtension(f.service, auth.WithExtensionLogger(bananabit.NopLogger()))
	registry := bananabit.NewRegistry(bananabit.WithRegistryLogger(bananabit.NopLogger()))
	registry.MustRegister(context.Background(), ext)
	require.NoError(t, registry.ActivateAll(context.Background()))

	composition, err := registry.Compose()
	require.NoError(t, err)

	app := fiber.New()
	composition.Routes.Mount(app, ext.RouteGuard())
	return app
}

func doJSON(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func basicAuth(req *http.Request, email, password string) *http.Request {
	creds := base64.StdEncoding.EncodeToString([]byte(email + ":" + password))
	req.Header.Set(fiber.HeaderAuthorization, "Basic "+creds)
	return req
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestHTTP_Register(t *testing.T) {
	f := newFixture(t)
	f.expectDelivery()
	app := newAuthApp(t, f)

	status, body := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/register/first", nil))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["first"])
	assert.Equal(t, auth.DefaultCaptchaQuestion, body["captcha_question"])

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/register",
		`{"email":"admin@example.com","password":"correct horse","captcha_answer":"a cool dude"}`))
	assert.Equal(t, http.StatusCreated, status)
	account, _ := body["account"].(map[string]any)
	assert.Equal(t, "admin", account["role"])
	assert.NotContains(t, account, "password_hash")

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/register",
		`{"email":"ADMIN@example.com","password":"correct horse","captcha_answer":"a cool dude"}`))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, auth.TextCodeDuplicateEmail, errorCode(body))

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/register",
		`{"email":"b@example.com","password":"correct horse","captcha_answer":"wrong"}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, auth.TextCodeCaptchaMismatch, errorCode(body))

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/register",
		`{"email":"nope","password":"x","captcha_answer":"a cool dude"}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, auth.TextCodeInvalidRegistration, errorCode(body))
}

func TestHTTP_RegisterWithFailedEmailIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.messenger.On("SendVerificationMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Once()
	app := newAuthApp(t, f)

	status, body := doJSON(t, app, jsonRequest(http.MethodPost, "/register",
		`{"email":"a@example.com","password":"correct horse","captcha_answer":"a cool dude"}`))
	assert.Equal(t, http.StatusAccepted, status)
	assert.Contains(t, body, "account")
	warning, _ := body["warning"].(map[string]any)
	assert.Equal(t, auth.TextCodeVerificationEmailFailed, warning["code"])
}

func TestHTTP_VerifyAndLogin(t *testing.T) {
	f := newFixture(t)
	f.expectDelivery()
	app := newAuthApp(t, f)

	f.register(t, "admin@example.com")
	token := f.lastToken("admin@example.com")

	status, body := doJSON(t, app, jsonRequest(http.MethodPost, "/login",
		`{"email":"admin@example.com","password":"correct horse"}`))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, auth.TextCodeAccountNotVerified, errorCode(body))

	status, body = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/verify-email?token="+url.QueryEscape(token), nil))
	assert.Equal(t, http.StatusOK, status)
	account, _ := body["account"].(map[string]any)
	assert.Equal(t, "verified", account["verification_state"])

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/verify-email", `{"token":"`+token+`"}`))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, auth.TextCodeTokenAlreadyConsumed, errorCode(body))

	status, body = doJSON(t, app, httptest.NewRequest(http.MethodGet, "/verify-email?token=unknown", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, auth.TextCodeTokenNotFound, errorCode(body))

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/login",
		`{"email":"admin@example.com","password":"correct horse"}`))
	assert.Equal(t, http.StatusOK, status)
	identity, _ := body["identity"].(map[string]any)
	assert.Equal(t, "admin", identity["role"])

	status, body = doJSON(t, app, jsonRequest(http.MethodPost, "/login",
		`{"email":"admin@example.com","password":"wrong password"}`))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.TextCodeInvalidCredentials, errorCode(body))
}

func TestHTTP_AdminRouteGuard(t *testing.T) {
	f := newFixture(t)
	f.expectDelivery()
	app := newAuthApp(t, f)

	f.registerVerified(t, "admin@example.com")
	f.registerVerified(t, "reader@example.com")

	status, body := doJSON(t, app, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.TextCodeAuthenticationRequired, errorCode(body))

	status, body = doJSON(t, app, basicAuth(httptest.NewRequest(http.MethodGet, "/admin", nil), "reader@example.com", "correct horse"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, auth.TextCodeAdminRequired, errorCode(body))

	status, body = doJSON(t, app, basicAuth(httptest.NewRequest(http.MethodGet, "/admin", nil), "admin@example.com", "bad"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, auth.TextCodeInvalidCredentials, errorCode(body))

	status, body = doJSON(t, app, basicAuth(httptest.NewRequest(http.MethodGet, "/admin", nil), "admin@example.com", "correct horse"))
	assert.Equal(t, http.StatusOK, status)
	identity, _ := body["identity"].(map[string]any)
	assert.Equal(t, "admin@example.com", identity["email"])
}

func TestHTTP_RouteGuardSkipsPublicRoutes(t *testing.T) {
	f := newFixture(t)
	guard := auth.NewRouteGuard(f.service)

	assert.Nil(t, guard(bananabit.DispatchRoute{Path: "/posts"}))
	assert.NotNil(t, guard(bananabit.DispatchRoute{Path: "/drafts", RequiresAuth: true}))
	assert.NotNil(t, guard(bananabit.DispatchRoute{Path: "/admin", AdminOnly: true}))
}
