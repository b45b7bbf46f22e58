package themes

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeThemeNotFound  = "THEME_NOT_FOUND"
	TextCodeDuplicateTheme = "DUPLICATE_THEME"
	TextCodeInvalidTheme   = "INVALID_THEME"
)

var themeIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Theme is a named stylesheet. At most one theme is active.
type Theme struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CSS         string `json:"css"`
	Active      bool   `json:"active"`
}

// Validate will run validation rules
func (t Theme) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required, validation.Length(1, 64), validation.Match(themeIDPattern)),
		validation.Field(&t.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&t.CSS, validation.Required),
	)
}

// ErrThemeNotFound is returned for unknown theme ids.
func ErrThemeNotFound(id string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("theme %q not found", id), goerrors.CategoryNotFound).
		WithTextCode(TextCodeThemeNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"id": id,
		})
}

// ErrDuplicateTheme is returned when adding a theme whose id is taken.
func ErrDuplicateTheme(id string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("theme %q already exists", id), goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateTheme).
		WithCode(http.StatusConflict)
}

// Store keeps themes in memory.
type Store struct {
	mu     sync.RWMutex
	themes map[string]Theme
	active string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{themes: map[string]Theme{}}
}

// Add validates t and stores it. An active t becomes the only active theme.
func (s *Store) Add(t Theme) (Theme, error) {
	t.ID = strings.TrimSpace(t.ID)
	if err := t.Validate(); err != nil {
		return Theme{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid theme").
			WithTextCode(TextCodeInvalidTheme).
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.themes[t.ID]; taken {
		return Theme{}, ErrDuplicateTheme(t.ID)
	}
	s.themes[t.ID] = t
	if t.Active {
		s.activateLocked(t.ID)
	}
	return s.themes[t.ID], nil
}

// Activate makes the theme with id the only active theme.
func (s *Store) Activate(id string) (Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.themes[id]; !ok {
		return Theme{}, ErrThemeNotFound(id)
	}
	s.activateLocked(id)
	return s.themes[id], nil
}

func (s *Store) activateLocked(id string) {
	if prev, ok := s.themes[s.active]; ok {
		prev.Active = false
		s.themes[prev.ID] = prev
	}
	t := s.themes[id]
	t.Active = true
	s.themes[id] = t
	s.active = id
}

// Delete removes the theme with id. Deleting the active theme leaves no
// theme active.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.themes[id]; !ok {
		return ErrThemeNotFound(id)
	}
	delete(s.themes, id)
	if s.active == id {
		s.active = ""
	}
	return nil
}

// Active returns the active theme.
func (s *Store) Active() (Theme, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.themes[s.active]
	return t, ok
}

// List returns every theme ordered by name.
func (s *Store) List() []Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Theme, 0, len(s.themes))
	for _, t := range s.themes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns how many themes are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.themes)
}
