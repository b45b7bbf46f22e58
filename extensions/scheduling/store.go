package scheduling

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeScheduleNotFound = "SCHEDULE_NOT_FOUND"
	TextCodeInvalidSchedule  = "INVALID_SCHEDULE"
	TextCodeScheduleState    = "INVALID_SCHEDULE_STATE"
)

// ContentType names the kind of content an item acts on.
type ContentType string

const (
	ContentPost  ContentType = "post"
	ContentPage  ContentType = "page"
	ContentMedia ContentType = "media"
)

// Action is what happens to the content when an item is due.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
	ActionDelete    Action = "delete"
	ActionUpdate    Action = "update"
)

// Status tracks an item from scheduling to completion.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one scheduled action.
type Item struct {
	ID          int         `json:"id"`
	ContentType ContentType `json:"content_type"`
	ContentID   int         `json:"content_id"`
	Action      Action      `json:"action"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CreatedBy   string      `json:"created_by"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Validate will run validation rules
func (i Item) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ContentType, validation.Required, validation.In(ContentPost, ContentPage, ContentMedia)),
		validation.Field(&i.ContentID, validation.Min(0)),
		validation.Field(&i.Action, validation.Required, validation.In(ActionPublish, ActionUnpublish, ActionDelete, ActionUpdate)),
		validation.Field(&i.ScheduledAt, validation.Required),
		validation.Field(&i.CreatedBy, validation.Required),
	)
}

// ErrScheduleNotFound is returned for unknown item ids.
func ErrScheduleNotFound(id int) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("scheduled item %d not found", id), goerrors.CategoryNotFound).
		WithTextCode(TextCodeScheduleNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"id": id,
		})
}

// ErrNotPending is returned when an item that already ran is cancelled or
// run again.
func ErrNotPending(id int, status Status) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("scheduled item %d is %s", id, status), goerrors.CategoryConflict).
		WithTextCode(TextCodeScheduleState).
		WithCode(http.StatusConflict).
		WithMetadata(map[string]any{
			"id":     id,
			"status": string(status),
		})
}

// Store keeps scheduled items in memory.
type Store struct {
	mu     sync.RWMutex
	items  map[int]Item
	nextID int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{items: map[int]Item{}, nextID: 1}
}

// Schedule validates item and stores it as pending.
func (s *Store) Schedule(item Item) (Item, error) {
	if err := item.Validate(); err != nil {
		return Item{}, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid scheduled item").
			WithTextCode(TextCodeInvalidSchedule).
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = s.nextID
	s.nextID++
	item.Status = StatusPending
	item.FinishedAt = nil
	item.Error = ""
	s.items[item.ID] = item
	return item, nil
}

// Get returns the item with id.
func (s *Store) Get(id int) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrScheduleNotFound(id)
	}
	return item, nil
}

// List returns every item ordered by due time.
func (s *Store) List() []Item {
	return s.filter(func(Item) bool { return true })
}

// Pending returns the items still waiting, soonest first.
func (s *Store) Pending() []Item {
	return s.filter(func(i Item) bool { return i.Status == StatusPending })
}

// Between returns the items due in [from, to).
func (s *Store) Between(from, to time.Time) []Item {
	return s.filter(func(i Item) bool {
		return !i.ScheduledAt.Before(from) && i.ScheduledAt.Before(to)
	})
}

// Cancel removes a pending item.
func (s *Store) Cancel(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return ErrScheduleNotFound(id)
	}
	if item.Status != StatusPending {
		return ErrNotPending(id, item.Status)
	}
	delete(s.items, id)
	return nil
}

// Claim moves a pending item to processing so one worker runs it.
func (s *Store) Claim(id int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrScheduleNotFound(id)
	}
	if item.Status != StatusPending {
		return Item{}, ErrNotPending(id, item.Status)
	}
	item.Status = StatusProcessing
	s.items[id] = item
	return item, nil
}

// ClaimDue moves every pending item due at now to processing and returns
// them, soonest first.
func (s *Store) ClaimDue(now time.Time) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Item
	for id, item := range s.items {
		if item.Status != StatusPending || item.ScheduledAt.After(now) {
			continue
		}
		item.Status = StatusProcessing
		s.items[id] = item
		due = append(due, item)
	}
	sortItems(due)
	return due
}

// Finish records the outcome of a processing item. A nil runErr completes it.
func (s *Store) Finish(id int, runErr error, at time.Time) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrScheduleNotFound(id)
	}
	if item.Status != StatusProcessing {
		return Item{}, ErrNotPending(id, item.Status)
	}

	item.FinishedAt = &at
	item.Status = StatusCompleted
	item.Error = ""
	if runErr != nil {
		item.Status = StatusFailed
		item.Error = runErr.Error()
	}
	s.items[id] = item
	return item, nil
}

// Len returns how many items are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) filter(keep func(Item) bool) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sortItems(out)
	return out
}

func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ScheduledAt.Equal(items[j].ScheduledAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].ScheduledAt.Before(items[j].ScheduledAt)
	})
}
