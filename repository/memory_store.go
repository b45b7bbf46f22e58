package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-bananabit/auth"
	"github.com/google/uuid"
)

// MemoryStore is an auth.Store kept in process memory. Every operation runs
// under one mutex, which makes each of them atomic.
type MemoryStore struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]*auth.Account
	byEmail       map[string]uuid.UUID
	tokens        map[string]*auth.VerificationToken
	notifications map[uuid.UUID]*auth.Notification
}

var _ auth.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      map[uuid.UUID]*auth.Account{},
		byEmail:       map[string]uuid.UUID{},
		tokens:        map[string]*auth.VerificationToken{},
		notifications: map[uuid.UUID]*auth.Notification{},
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, factory auth.AccountFactory) (*auth.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := factory(len(s.accounts))
	if err != nil {
		return nil, err
	}

	account := reg.Account
	if _, exists := s.byEmail[account.EmailNormalized]; exists {
		return nil, auth.ErrDuplicateEmail()
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	s.accounts[account.ID] = copyAccount(account)
	s.byEmail[account.EmailNormalized] = account.ID
	if reg.Token != nil {
		token := *reg.Token
		s.tokens[token.Value] = &token
	}
	if reg.Notification != nil {
		n := *reg.Notification
		s.notifications[n.ID] = &n
	}
	return reg, nil
}

func (s *MemoryStore) FindAccountByEmail(_ context.Context, email string) (*auth.Account, error) {
	normalized := auth.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalized]
	if !ok {
		return nil, auth.ErrAccountNotFound(normalized)
	}
	return copyAccount(s.accounts[id]), nil
}

func (s *MemoryStore) FindAccountByID(_ context.Context, id uuid.UUID) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrAccountNotFound(id.String())
	}
	return copyAccount(account), nil
}

func (s *MemoryStore) UpdateVerificationState(_ context.Context, id uuid.UUID, state auth.VerificationState, at time.Time) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrAccountNotFound(id.String())
	}
	if err := transitions.Check(account.VerificationState, state); err != nil {
		return nil, err
	}
	account.VerificationState = state
	if state == auth.StateVerified {
		verifiedAt := at
		account.VerifiedAt = &verifiedAt
	}
	return copyAccount(account), nil
}

func (s *MemoryStore) CountAccounts(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts), nil
}

func (s *MemoryStore) FindToken(_ context.Context, value string) (*auth.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return nil, auth.ErrTokenNotFound()
	}
	out := *token
	return &out, nil
}

func (s *MemoryStore) ConsumeToken(_ context.Context, value string, at time.Time, guard auth.TokenGuard) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[value]
	if !ok {
		return nil, auth.ErrTokenNotFound()
	}
	account := s.accounts[token.AccountID]

	if guard != nil {
		if err := guard(token, account); err != nil {
			return nil, err
		}
	}
	if account == nil {
		return nil, auth.ErrAccountNotFound(token.AccountID.String())
	}
	if token.Consumed {
		return nil, auth.ErrTokenAlreadyConsumed()
	}

	auth.MarkVerified(token, account, at)
	return copyAccount(account), nil
}

func (s *MemoryStore) EnqueueNotification(_ context.Context, n *auth.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	stored := *n
	s.notifications[n.ID] = &stored
	return nil
}

func (s *MemoryStore) PendingNotifications(_ context.Context, createdBefore time.Time, maxAttempts, limit int) ([]*auth.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*auth.Notification, 0)
	for _, n := range s.notifications {
		if n.DeliveredAt != nil || n.Attempts >= maxAttempts || !n.CreatedAt.Before(createdBefore) {
			continue
		}
		c := *n
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[id]; ok {
		deliveredAt := at
		n.DeliveredAt = &deliveredAt
		n.LastError = ""
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[id]; ok {
		n.Attempts++
		n.LastError = cause
	}
	return nil
}

// Notifications returns a snapshot of every stored notification, oldest first.
func (s *MemoryStore) Notifications() []auth.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]auth.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func copyAccount(a *auth.Account) *auth.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
