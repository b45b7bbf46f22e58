package comments

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeCommentNotFound = "COMMENT_NOT_FOUND"
	TextCodePostNotFound    = "POST_NOT_FOUND"
	TextCodeInvalidComment  = "INVALID_COMMENT"
)

// Comment belongs to a post. Only approved comments are listed.
type Comment struct {
	ID        int       `json:"id"`
	PostSlug  string    `json:"post_slug"`
	Author    string    `json:"author"`
	Email     string    `json:"-"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Approved  bool      `json:"approved"`
}

// Validate will run validation rules
func (c Comment) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PostSlug, validation.Required),
		validation.Field(&c.Author, validation.Required, validation.Length(1, 100)),
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Content, validation.Required, validation.Length(1, 5000)),
	)
}

func ErrCommentNotFound(id int) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("comment %d not found", id), goerrors.CategoryNotFound).
		WithTextCode(TextCodeCommentNotFound).
		WithCode(goerrors.CodeNotFound)
}

func ErrPostNotFound(slug string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("post %q not found", slug), goerrors.CategoryNotFound).
		WithTextCode(TextCodePostNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"slug": slug,
		})
}

// Store keeps comments in memory.
type Store struct {
	mu       sync.RWMutex
	comments map[int]Comment
	nextID   int
}

func NewStore() *Store {
	return &Store{comments: map[int]Comment{}, nextID: 1}
}

// Add validates c and stores it with a fresh id.
func (s *Store) Add(c Comment) (Comment, error) {
	c.Author = strings.TrimSpace(c.Author)
	c.Email = strings.TrimSpace(c.Email)
	c.Content = strings.TrimSpace(c.Content)
	if err := c.Validate(); err != nil {
		return Comment{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid comment").
			WithTextCode(TextCodeInvalidComment).
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextID
	s.nextID++
	s.comments[c.ID] = c
	return c, nil
}

// Approve marks the comment visible. Approving twice is a no-op.
func (s *Store) Approve(id int) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[id]
	if !ok {
		return Comment{}, ErrCommentNotFound(id)
	}
	c.Approved = true
	s.comments[id] = c
	return c, nil
}

// ForPost lists approved comments for slug, oldest first.
func (s *Store) ForPost(slug string) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Comment{}
	for _, c := range s.comments {
		if c.PostSlug == slug && c.Approved {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Pending lists comments waiting for approval.
func (s *Store) Pending() []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Comment{}
	for _, c := range s.comments {
		if !c.Approved {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comments)
}
