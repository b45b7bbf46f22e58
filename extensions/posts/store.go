package posts

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodePostNotFound  = "POST_NOT_FOUND"
	TextCodeDuplicateSlug = "DUPLICATE_SLUG"
	TextCodeInvalidPost   = "INVALID_POST"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Post is a blog post. Content is markdown source.
type Post struct {
	ID        int       `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Published bool      `json:"published"`
}

// Validate will run validation rules
func (p Post) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Slug, validation.Required, validation.Length(1, 128), validation.Match(slugPattern)),
		validation.Field(&p.Title, validation.Required, validation.Length(1, 256)),
		validation.Field(&p.Author, validation.Required),
	)
}

// ErrPostNotFound is returned for unknown or unpublished slugs.
func ErrPostNotFound(slug string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("post %q not found", slug), goerrors.CategoryNotFound).
		WithTextCode(TextCodePostNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"slug": slug,
		})
}

// ErrPostIDNotFound is returned by admin operations on an unknown id.
func ErrPostIDNotFound(id int) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("post %d not found", id), goerrors.CategoryNotFound).
		WithTextCode(TextCodePostNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"id": id,
		})
}

// ErrDuplicateSlug is returned when adding a post whose slug is taken.
func ErrDuplicateSlug(slug string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("slug %q is already used", slug), goerrors.CategoryConflict).
		WithTextCode(TextCodeDuplicateSlug).
		WithCode(http.StatusConflict)
}

// Store keeps posts in memory, indexed by id and slug.
type Store struct {
	mu     sync.RWMutex
	posts  map[int]Post
	bySlug map[string]int
	nextID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		posts:  map[int]Post{},
		bySlug: map[string]int{},
		nextID: 1,
	}
}

// Add validates p, assigns its id and stores it.
func (s *Store) Add(p Post) (Post, error) {
	p.Slug = strings.TrimSpace(p.Slug)
	if err := p.Validate(); err != nil {
		return Post{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid post").
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.bySlug[p.Slug]; taken {
		return Post{}, ErrDuplicateSlug(p.Slug)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	p.ID = s.nextID
	s.nextID++
	s.posts[p.ID] = p
	s.bySlug[p.Slug] = p.ID
	return p, nil
}

// ByID returns the post with id, published or not.
func (s *Store) ByID(id int) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	return p, ok
}

// BySlug returns the published post with slug.
func (s *Store) BySlug(slug string) (Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok || !s.posts[id].Published {
		return Post{}, ErrPostNotFound(slug)
	}
	return s.posts[id], nil
}

// Exists reports whether a published post has slug.
func (s *Store) Exists(slug string) bool {
	_, err := s.BySlug(slug)
	return err == nil
}

// Published lists published posts, latest first.
func (s *Store) Published() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.Published {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}

// Len returns how many posts are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// Save creates p when its id is zero or unknown and replaces the stored post
// otherwise. CreatedAt is kept on update and the slug must stay unique.
func (s *Store) Save(p Post, now time.Time) (Post, error) {
	p.Slug = strings.TrimSpace(p.Slug)
	if err := p.Validate(); err != nil {
		return Post{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid post").
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.posts[p.ID]
	if owner, taken := s.bySlug[p.Slug]; taken && (!exists || owner != p.ID) {
		return Post{}, ErrDuplicateSlug(p.Slug)
	}

	if !exists {
		p.ID = s.nextID
		s.nextID++
		p.CreatedAt = now
	} else {
		p.CreatedAt = current.CreatedAt
		delete(s.bySlug, current.Slug)
	}
	p.UpdatedAt = now

	s.posts[p.ID] = p
	s.bySlug[p.Slug] = p.ID
	return p, nil
}

// SetPublished flips the published flag of the post with id.
func (s *Store) SetPublished(id int, published bool, now time.Time) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return Post{}, ErrPostIDNotFound(id)
	}
	p.Published = published
	p.UpdatedAt = now
	s.posts[id] = p
	return p, nil
}

// Delete removes the post with id.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return ErrPostIDNotFound(id)
	}
	delete(s.posts, id)
	delete(s.bySlug, p.Slug)
	return nil
}

// All lists every post, drafts included, latest first.
func (s *Store) All() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID > out[j].ID
	})
	return out
}
