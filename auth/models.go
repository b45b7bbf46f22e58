package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the account role. It is decided once, at creation.
type Role string

const (
	// RoleAdmin is given to the first account ever created
	RoleAdmin Role = "admin"
	// RoleSubscriber is given to every other account
	RoleSubscriber Role = "subscriber"
)

// VerificationState tracks whether the account owns its email address.
type VerificationState string

const (
	StateUnverified VerificationState = "unverified"
	StateVerified   VerificationState = "verified"
)

// Account is a registered user. Accounts are never hard deleted.
type Account struct {
	bun.BaseModel     `bun:"table:accounts,alias:acc"`
	ID                uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	Email             string            `bun:"email,notnull" json:"email"`
	EmailNormalized   string            `bun:"email_normalized,notnull,unique" json:"-"`
	Username          string            `bun:"username,notnull" json:"username"`
	PasswordHash      string            `bun:"password_hash,notnull" json:"-"`
	Role              Role              `bun:"role,notnull" json:"role"`
	VerificationState VerificationState `bun:"verification_state,notnull" json:"verification_state"`
	CreatedAt         time.Time         `bun:"created_at,notnull" json:"created_at"`
	VerifiedAt        *time.Time        `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
}

// IsVerified reports whether the account may log in.
func (a *Account) IsVerified() bool {
	return a != nil && a.VerificationState == StateVerified
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Public returns the projection safe to hand to callers.
func (a *Account) Public() PublicAccount {
	if a == nil {
		return PublicAccount{}
	}
	return PublicAccount{
		ID:                a.ID,
		Email:             a.Email,
		Username:          a.Username,
		Role:              a.Role,
		VerificationState: a.VerificationState,
		CreatedAt:         a.CreatedAt,
		VerifiedAt:        a.VerifiedAt,
	}
}

// Identity returns the authenticated identity of the account.
func (a *Account) Identity() Identity {
	return Identity{
		ID:       a.ID,
		Email:    a.Email,
		Username: a.Username,
		Role:     a.Role,
	}
}

// PublicAccount is an Account without credentials.
type PublicAccount struct {
	ID                uuid.UUID         `json:"id"`
	Email             string            `json:"email"`
	Username          string            `json:"username"`
	Role              Role              `json:"role"`
	VerificationState VerificationState `json:"verification_state"`
	CreatedAt         time.Time         `json:"created_at"`
	VerifiedAt        *time.Time        `json:"verified_at,omitempty"`
}

// Identity is returned by a successful authentication.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// VerificationToken proves ownership of an email address. Expired tokens
// stay in storage; they are inert.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vt"`
	Value         string     `bun:"value,pk" json:"-"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id"`
	IssuedAt      time.Time  `bun:"issued_at,notnull" json:"issued_at"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	Consumed      bool       `bun:"consumed,notnull" json:"consumed"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
}

// Expired reports whether the token is past its expiry at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// NotificationKind names the message a notification row delivers.
type NotificationKind string

const (
	NotificationVerification NotificationKind = "verification"
	NotificationWelcome      NotificationKind = "welcome"
)

// Notification is an outbox row written with the state change that needs it
// and delivered after commit.
type Notification struct {
	bun.BaseModel `bun:"table:notification_outbox,alias:nob"`
	ID            uuid.UUID        `bun:"id,pk,type:uuid" json:"id"`
	Kind          NotificationKind `bun:"kind,notnull" json:"kind"`
	AccountID     uuid.UUID        `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Recipient     string           `bun:"recipient,notnull" json:"recipient"`
	Token         string           `bun:"token" json:"-"`
	Attempts      int              `bun:"attempts,notnull" json:"attempts"`
	LastError     string           `bun:"last_error" json:"last_error,omitempty"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"created_at"`
	DeliveredAt   *time.Time       `bun:"delivered_at,nullzero" json:"delivered_at,omitempty"`
}

// Delivered reports whether the notification was sent.
func (n *Notification) Delivered() bool {
	return n.DeliveredAt != nil
}

// Registration is the unit persisted atomically by Store.CreateAccount.
type Registration struct {
	Account      *Account
	Token        *VerificationToken
	Notification *Notification
}

// NormalizeEmail returns the comparison form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// getUsername falls back to the email local part.
func getUsername(username, email string) string {
	if username = strings.TrimSpace(username); username != "" {
		return username
	}

	email = strings.TrimSpace(email)
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}

	return email
}
