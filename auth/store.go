package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountFactory builds the registration unit given the number of accounts
// that exist inside the store's atomic unit.
type AccountFactory func(existing int) (*Registration, error)

// TokenGuard decides, inside the consume unit, whether token may verify
// account. A non nil error aborts the unit.
type TokenGuard func(token *VerificationToken, account *Account) error

// Store is the persistence capability of the auth extension.
//
// CreateAccount runs count-then-create as one serialized unit and must
// report constraint violations on the normalized email as DUPLICATE_EMAIL.
// ConsumeToken must mark the token consumed with a compare-and-set and move
// the account to verified in the same unit.
type Store interface {
	CreateAccount(ctx context.Context, factory AccountFactory) (*Registration, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateVerificationState(ctx context.Context, id uuid.UUID, state VerificationState, at time.Time) (*Account, error)
	CountAccounts(ctx context.Context) (int, error)
	FindToken(ctx context.Context, value string) (*VerificationToken, error)
	ConsumeToken(ctx context.Context, value string, at time.Time, guard TokenGuard) (*Account, error)
	Outbox
}

// Outbox stores notifications that still need delivery. Pending rows are
// undelivered, created before the given time and below maxAttempts, oldest
// first.
type Outbox interface {
	EnqueueNotification(ctx context.Context, n *Notification) error
	PendingNotifications(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]*Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause string) error
}

// Messenger is the messaging capability used to reach account owners.
type Messenger interface {
	SendVerificationMessage(ctx context.Context, to, token, baseURL string) error
	SendWelcomeMessage(ctx context.Context, to string) error
}

// MessengerFuncs adapts functions to Messenger. Nil fields succeed.
type MessengerFuncs struct {
	Verification func(ctx context.Context, to, token, baseURL string) error
	Welcome      func(ctx context.Context, to string) error
}

func (m MessengerFuncs) SendVerificationMessage(ctx context.Context, to, token, baseURL string) error {
	if m.Verification == nil {
		return nil
	}
	return m.Verification(ctx, to, token, baseURL)
}

func (m MessengerFuncs) SendWelcomeMessage(ctx context.Context, to string) error {
	if m.Welcome == nil {
		return nil
	}
	return m.Welcome(ctx, to)
}
