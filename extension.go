package bananabit

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Extension is the unit of pluggability. Identity is the only required
// capability; the rest are discovered through the optional interfaces below.
type Extension interface {
	ID() string
	Name() string
	Version() string
}

// Initializer is implemented by extensions that need setup before activation.
type Initializer interface {
	Init(ctx context.Context) error
}

// RouteContributor is implemented by extensions that serve routes.
type RouteContributor interface {
	Routes() []Route
}

// ComponentContributor is implemented by extensions that provide UI components.
type ComponentContributor interface {
	Components() []Component
}

// Shutdowner is implemented by extensions that hold resources.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Info is an embeddable identity.
type Info struct {
	ExtensionID      string
	ExtensionName    string
	ExtensionVersion string
}

func (i Info) ID() string      { return i.ExtensionID }
func (i Info) Name() string    { return i.ExtensionName }
func (i Info) Version() string { return i.ExtensionVersion }

// Route is a route declared by an extension. An empty Method matches any method.
type Route struct {
	Method       string
	Path         string
	Name         string
	Handler      fiber.Handler
	RequiresAuth bool
	AdminOnly    bool
}

// RenderFunc renders a component with the given properties.
type RenderFunc func(ctx context.Context, props map[string]any) (string, error)

// Component is a UI component descriptor declared by an extension.
//
// Overrides must name the extension currently owning Key for a cross
// extension replacement to be accepted.
type Component struct {
	Key         string
	Description string
	Renderer    RenderFunc
	Overrides   string
}

// State is the lifecycle state of a registered extension.
type State string

const (
	StateUnregistered State = "unregistered"
	StateInitialized  State = "initialized"
	StateActive       State = "active"
	StateShutDown     State = "shut_down"
)

func (s State) String() string {
	return string(s)
}

// canAdvance reports whether the lifecycle may move from s to next.
func (s State) canAdvance(next State) bool {
	switch s {
	case StateUnregistered:
		return next == StateInitialized
	case StateInitialized:
		return next == StateActive || next == StateShutDown
	case StateActive:
		return next == StateShutDown
	default:
		return false
	}
}

// Descriptor is a read-only view of a registered extension.
type Descriptor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	State   State  `json:"state"`
}
