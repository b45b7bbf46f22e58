package auth

import (
	"time"
)

// VerificationStateMachine owns the legal verification transitions. Verified
// is terminal.
type VerificationStateMachine struct {
	transitions map[VerificationState]map[VerificationState]struct{}
	now         func() time.Time
}

// StateMachineOption customizes the state machine.
type StateMachineOption func(*VerificationStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *VerificationStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// NewVerificationStateMachine returns the state machine with the default
// transition graph.
func NewVerificationStateMachine(opts ...StateMachineOption) *VerificationStateMachine {
	sm := &VerificationStateMachine{
		transitions: map[VerificationState]map[VerificationState]struct{}{
			StateUnverified: {
				StateVerified: {},
			},
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Now returns the state machine clock reading.
func (sm *VerificationStateMachine) Now() time.Time {
	return sm.now()
}

// CanTransition reports whether an account may move from one state to another.
func (sm *VerificationStateMachine) CanTransition(from, to VerificationState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Check returns INVALID_STATE_TRANSITION when from cannot move to to.
func (sm *VerificationStateMachine) Check(from, to VerificationState) error {
	if !sm.CanTransition(from, to) {
		return ErrInvalidTransition(from, to)
	}
	return nil
}

// Guard returns the check run inside the store's consume unit. Consumption
// is checked before expiry so that a repeated verification always reports
// TOKEN_ALREADY_CONSUMED.
func (sm *VerificationStateMachine) Guard(now time.Time) TokenGuard {
	return func(token *VerificationToken, account *Account) error {
		if token == nil {
			return ErrTokenNotFound()
		}
		if token.Consumed {
			return ErrTokenAlreadyConsumed()
		}
		if token.Expired(now) {
			return ErrTokenExpired(token.ExpiresAt)
		}
		if account == nil {
			return ErrAccountNotFound(token.AccountID.String())
		}
		if !sm.CanTransition(account.VerificationState, StateVerified) {
			return ErrInvalidTransition(account.VerificationState, StateVerified)
		}
		return nil
	}
}

// MarkVerified applies the verified transition to token and account. Stores
// call it once the guard accepted the pair.
func MarkVerified(token *VerificationToken, account *Account, at time.Time) {
	consumedAt := at
	token.Consumed = true
	token.ConsumedAt = &consumedAt

	verifiedAt := at
	account.VerificationState = StateVerified
	account.VerifiedAt = &verifiedAt
}
