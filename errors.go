package bananabit

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeDuplicateExtensionID  = "DUPLICATE_EXTENSION_ID"
	TextCodeExtensionInitFailed   = "EXTENSION_INIT_FAILED"
	TextCodeInvalidExtension      = "INVALID_EXTENSION"
	TextCodeRegistryClosed        = "REGISTRY_CLOSED"
	TextCodeRouteCollision        = "ROUTE_COLLISION"
	TextCodeComponentKeyCollision = "COMPONENT_KEY_COLLISION"
	TextCodeInvalidRoute          = "INVALID_ROUTE"
	TextCodeInvalidComponent      = "INVALID_COMPONENT"
	TextCodeComponentNotFound     = "COMPONENT_NOT_FOUND"
)

// ErrDuplicateExtensionID is returned when an extension id is already registered.
func ErrDuplicateExtensionID(id string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("extension %q is already registered", id), goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateExtensionID).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"extension_id": id,
		})
}

// ErrExtensionInitFailed wraps the error returned by an initialization hook.
func ErrExtensionInitFailed(id string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, fmt.Sprintf("extension %q failed to initialize", id)).
		WithTextCode(TextCodeExtensionInitFailed).
		WithCode(http.StatusInternalServerError).
		WithMetadata(map[string]any{
			"extension_id": id,
		})
}

// ErrInvalidExtension is returned for nil extensions or malformed identities.
func ErrInvalidExtension(id, reason string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("invalid extension %q: %s", id, reason), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidExtension).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"extension_id": id,
			"reason":       reason,
		})
}

// ErrRegistryClosed is returned when registering after shutdown.
func ErrRegistryClosed(id string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("registry is shut down, cannot register %q", id), goerrors.CategoryOperation).
		WithTextCode(TextCodeRegistryClosed).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"extension_id": id,
		})
}

// ErrRouteCollision names the pattern and both extensions that contribute it.
func ErrRouteCollision(path, first, second string) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("route %q contributed by %q collides with route owned by %q", path, second, first),
		goerrors.CategoryConflict,
	).
		WithTextCode(TextCodeRouteCollision).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"path":        path,
			"extension_a": first,
			"extension_b": second,
		})
}

// ErrComponentKeyCollision names the key and both extensions that contribute it.
func ErrComponentKeyCollision(key, first, second, reason string) *goerrors.Error {
	return goerrors.New(
		fmt.Sprintf("component %q contributed by %q collides with component owned by %q: %s", key, second, first, reason),
		goerrors.CategoryConflict,
	).
		WithTextCode(TextCodeComponentKeyCollision).
		WithCode(goerrors.CodeConflict).
		WithMetadata(map[string]any{
			"key":         key,
			"extension_a": first,
			"extension_b": second,
			"reason":      reason,
		})
}

// ErrInvalidRoute is returned for routes that can not be dispatched.
func ErrInvalidRoute(owner, path, reason string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("extension %q has invalid route %q: %s", owner, path, reason), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidRoute).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"extension_id": owner,
			"path":         path,
			"reason":       reason,
		})
}

// ErrInvalidComponent is returned for components without a key or renderer.
func ErrInvalidComponent(owner, key, reason string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("extension %q has invalid component %q: %s", owner, key, reason), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidComponent).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"extension_id": owner,
			"key":          key,
			"reason":       reason,
		})
}

// ErrComponentNotFound is returned when rendering an unknown component key.
func ErrComponentNotFound(key string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("component %q not found", key), goerrors.CategoryNotFound).
		WithTextCode(TextCodeComponentNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"key": key,
		})
}

// HasTextCode reports whether err, or any error it wraps, carries the text code.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			return false
		}
		if rich.TextCode == code {
			return true
		}
		err = errors.Unwrap(rich)
	}
	return false
}

// TextCode returns the outermost text code found in err.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}
