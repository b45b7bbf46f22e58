package pages

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodePageNotFound  = "PAGE_NOT_FOUND"
	TextCodeDuplicateSlug = "DUPLICATE_SLUG"

	DefaultTemplate = "default"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Page is a static page.
type Page struct {
	ID        int       `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Published bool      `json:"published"`
}

// Validate will run validation rules
func (p Page) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Slug, validation.Required, validation.Match(slugPattern)),
		validation.Field(&p.Title, validation.Required),
	)
}

func ErrPageNotFound(slug string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("page %q not found", slug), goerrors.CategoryNotFound).
		WithTextCode(TextCodePageNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"slug": slug,
		})
}

func ErrDuplicateSlug(slug string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("slug %q is already used", slug), goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateSlug).
		WithCode(http.StatusConflict)
}

// Store keeps pages in memory.
type Store struct {
	mu     sync.RWMutex
	pages  map[string]Page
	nextID int
}

func NewStore() *Store {
	return &Store{pages: map[string]Page{}, nextID: 1}
}

// Add stores p under its slug.
func (s *Store) Add(p Page) (Page, error) {
	if err := p.Validate(); err != nil {
		return Page{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid page").
			WithCode(goerrors.CodeBadRequest)
	}
	if p.Template == "" {
		p.Template = DefaultTemplate
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.pages[p.Slug]; taken {
		return Page{}, ErrDuplicateSlug(p.Slug)
	}
	p.ID = s.nextID
	s.nextID++
	s.pages[p.Slug] = p
	return p, nil
}

// BySlug returns the published page with slug.
func (s *Store) BySlug(slug string) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[slug]
	if !ok || !p.Published {
		return Page{}, ErrPageNotFound(slug)
	}
	return p, nil
}

// Published lists published pages ordered by title.
func (s *Store) Published() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Page, 0, len(s.pages))
	for _, p := range s.pages {
		if p.Published {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Title < out[j].Title
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}
