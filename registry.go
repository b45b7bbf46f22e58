package bananabit

import (
	"context"
	"errors"
	"regexp"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
)

var extensionIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+(?:[._-][A-Za-z0-9]+)*\.[A-Za-z0-9]+(?:[_-][A-Za-z0-9]+)*$`)

// Registry owns the registered extensions and their lifecycle for the
// process lifetime. Registration order is preserved and significant.
type Registry struct {
	mu       sync.RWMutex
	entries  []*entry
	index    map[string]*entry
	closed   bool
	logger   Logger
	composer []ComposeOption
}

type entry struct {
	ext   Extension
	state State
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithComposeOptions sets the options used by Registry.Compose.
func WithComposeOptions(opts ...ComposeOption) RegistryOption {
	return func(r *Registry) {
		r.composer = append(r.composer, opts...)
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		index:  make(map[string]*entry),
		logger: DefaultLogger("registry"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ValidateExtensionID checks that id is a namespaced extension id, e.g. core.auth.
func ValidateExtensionID(id string) error {
	return validation.Validate(id,
		validation.Required,
		validation.Length(3, 128),
		validation.Match(extensionIDPattern),
	)
}

// Register initializes ext and adds it to the registry in Initialized state.
// A failing initialization hook leaves the registry unchanged.
func (r *Registry) Register(ctx context.Context, ext Extension) error {
	if ext == nil {
		return ErrInvalidExtension("", "extension is nil")
	}

	id := ext.ID()
	if err := ValidateExtensionID(id); err != nil {
		return ErrInvalidExtension(id, err.Error())
	}

	if err := r.checkRegistrable(id); err != nil {
		return err
	}

	if init, ok := ext.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			r.logger.Error("extension init failed", "extension", id, "error", err)
			return ErrExtensionInitFailed(id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRegistrableLocked(id); err != nil {
		return err
	}

	e := &entry{ext: ext, state: StateUnregistered}
	r.advance(e, StateInitialized)
	r.entries = append(r.entries, e)
	r.index[id] = e

	r.logger.Info("extension registered", "extension", id, "name", ext.Name(), "version", ext.Version())
	return nil
}

// MustRegister registers every extension in order and panics on the first failure.
func (r *Registry) MustRegister(ctx context.Context, exts ...Extension) {
	for _, ext := range exts {
		if err := r.Register(ctx, ext); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) checkRegistrable(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkRegistrableLocked(id)
}

func (r *Registry) checkRegistrableLocked(id string) error {
	if r.closed {
		return ErrRegistryClosed(id)
	}
	if _, exists := r.index[id]; exists {
		return ErrDuplicateExtensionID(id)
	}
	return nil
}

// ActivateAll moves every Initialized extension to Active, in registration order.
func (r *Registry) ActivateAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed("")
	}

	for _, e := range r.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.state != StateInitialized {
			continue
		}
		r.advance(e, StateActive)
		r.logger.Debug("extension activated", "extension", e.ext.ID())
	}
	return nil
}

// ShutdownAll moves every extension to ShutDown in reverse registration order.
// Hook failures are logged and do not stop the remaining shutdowns; they are
// returned joined.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	pending := make([]*entry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].state != StateShutDown {
			pending = append(pending, r.entries[i])
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range pending {
		id := e.ext.ID()
		if s, ok := e.ext.(Shutdowner); ok {
			if err := s.Shutdown(ctx); err != nil {
				r.logger.Error("extension shutdown failed", "extension", id, "error", err)
				errs = append(errs, err)
			}
		}

		r.mu.Lock()
		r.advance(e, StateShutDown)
		r.mu.Unlock()
		r.logger.Debug("extension shut down", "extension", id)
	}

	return errors.Join(errs...)
}

// advance is the only place lifecycle state changes.
func (r *Registry) advance(e *entry, next State) {
	if !e.state.canAdvance(next) {
		return
	}
	e.state = next
}

// Get returns the registered extension with id.
func (r *Registry) Get(id string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return e.ext, true
}

// State returns the lifecycle state of id, StateUnregistered when unknown.
func (r *Registry) State(id string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.index[id]; ok {
		return e.state
	}
	return StateUnregistered
}

// Extensions lists registered extensions in registration order.
func (r *Registry) Extensions() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Descriptor{
			ID:      e.ext.ID(),
			Name:    e.ext.Name(),
			Version: e.ext.Version(),
			State:   e.state,
		})
	}
	return out
}

// Active returns the Active extensions in registration order.
func (r *Registry) Active() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Extension, 0, len(r.entries))
	for _, e := range r.entries {
		if e.state == StateActive {
			out = append(out, e.ext)
		}
	}
	return out
}

// Compose builds the dispatch table and component registry of the Active set.
func (r *Registry) Compose() (*Composition, error) {
	opts := append([]ComposeOption{WithComposeLogger(r.logger)}, r.composer...)
	return Compose(r.Active(), opts...)
}
