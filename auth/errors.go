package auth

import (
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	TextCodeDuplicateEmail            = "DUPLICATE_EMAIL"
	TextCodeCaptchaMismatch           = "CAPTCHA_MISMATCH"
	TextCodeVerificationEmailFailed   = "VERIFICATION_EMAIL_FAILED"
	TextCodeInvalidRegistration       = "INVALID_REGISTRATION"
	TextCodeTokenNotFound             = "TOKEN_NOT_FOUND"
	TextCodeTokenExpired              = "TOKEN_EXPIRED"
	TextCodeTokenAlreadyConsumed      = "TOKEN_ALREADY_CONSUMED"
	TextCodeInvalidCredentials        = "INVALID_CREDENTIALS"
	TextCodeAccountNotVerified        = "ACCOUNT_NOT_VERIFIED"
	TextCodeAccountNotFound           = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidStateTransition    = "INVALID_VERIFICATION_TRANSITION"
	TextCodeAdminRequired             = "ADMIN_REQUIRED"
	TextCodeAuthenticationRequired    = "AUTHENTICATION_REQUIRED"
	TextCodeNotificationDeliveryError = "NOTIFICATION_DELIVERY_FAILED"
)

// ErrDuplicateEmail is returned when the normalized email is already taken.
func ErrDuplicateEmail() *goerrors.Error {
	return goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateEmail).
		WithCode(goerrors.CodeConflict)
}

// ErrCaptchaMismatch is returned when the challenge answer is wrong.
func ErrCaptchaMismatch() *goerrors.Error {
	return goerrors.New("captcha answer does not match", goerrors.CategoryValidation).
		WithTextCode(TextCodeCaptchaMismatch).
		WithCode(goerrors.CodeBadRequest)
}

// ErrVerificationEmailFailed is returned alongside a created account when the
// verification message could not be sent.
func ErrVerificationEmailFailed(accountID uuid.UUID, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryOperation, "account created but the verification email could not be sent").
		WithTextCode(TextCodeVerificationEmailFailed).
		WithCode(http.StatusBadGateway).
		WithMetadata(map[string]any{
			"account_id": accountID.String(),
		})
}

// ErrInvalidRegistration wraps payload validation failures.
func ErrInvalidRegistration(cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryValidation, "invalid registration payload").
		WithTextCode(TextCodeInvalidRegistration).
		WithCode(goerrors.CodeBadRequest)
}

// ErrTokenNotFound is returned for unknown verification tokens.
func ErrTokenNotFound() *goerrors.Error {
	return goerrors.New("verification token not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeTokenNotFound).
		WithCode(goerrors.CodeNotFound)
}

// ErrTokenExpired is returned for tokens past their expiry.
func ErrTokenExpired(expiresAt time.Time) *goerrors.Error {
	return goerrors.New("verification token has expired", goerrors.CategoryValidation).
		WithTextCode(TextCodeTokenExpired).
		WithCode(http.StatusGone).
		WithMetadata(map[string]any{
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		})
}

// ErrTokenAlreadyConsumed is returned for tokens that were already used.
func ErrTokenAlreadyConsumed() *goerrors.Error {
	return goerrors.New("verification token was already used", goerrors.CategoryConflict).
		WithTextCode(TextCodeTokenAlreadyConsumed).
		WithCode(goerrors.CodeConflict)
}

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
func ErrInvalidCredentials() *goerrors.Error {
	return goerrors.New("invalid email or password", goerrors.CategoryAuth).
		WithTextCode(TextCodeInvalidCredentials).
		WithCode(http.StatusUnauthorized)
}

// ErrAccountNotVerified is returned when correct credentials belong to an
// unverified account.
func ErrAccountNotVerified() *goerrors.Error {
	return goerrors.New("account email is not verified", goerrors.CategoryAuth).
		WithTextCode(TextCodeAccountNotVerified).
		WithCode(http.StatusForbidden)
}

// ErrAccountNotFound is returned by stores for unknown accounts.
func ErrAccountNotFound(identifier string) *goerrors.Error {
	return goerrors.New("account not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeAccountNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

// ErrInvalidTransition is returned when the verification state can not move.
func ErrInvalidTransition(from, to VerificationState) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("invalid verification transition %s -> %s", from, to), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidStateTransition).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"from": from,
			"to":   to,
		})
}

// ErrAuthenticationRequired is returned by the route guard without credentials.
func ErrAuthenticationRequired() *goerrors.Error {
	return goerrors.New("authentication required", goerrors.CategoryAuth).
		WithTextCode(TextCodeAuthenticationRequired).
		WithCode(http.StatusUnauthorized)
}

// ErrAdminRequired is returned by the route guard for non admin identities.
func ErrAdminRequired() *goerrors.Error {
	return goerrors.New("admin role required", goerrors.CategoryAuth).
		WithTextCode(TextCodeAdminRequired).
		WithCode(http.StatusForbidden)
}

// StatusCode maps an error to the HTTP status it should be reported with.
func StatusCode(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= 400 && rich.Code < 600 {
		return rich.Code
	}
	return http.StatusInternalServerError
}
