package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-bananabit/auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore implements auth.Store on a bun database.
type BunStore struct {
	db       *bun.DB
	accounts repository.Repository[*auth.Account]

	// serializes count-then-create across goroutines of this process
	createMu sync.Mutex
}

var _ auth.Store = (*BunStore)(nil)

var transitions = auth.NewVerificationStateMachine()

// NewAccountsRepository returns the generic account repository, keyed by
// the normalized email.
func NewAccountsRepository(db *bun.DB) repository.Repository[*auth.Account] {
	handlers := repository.ModelHandlers[*auth.Account]{
		NewRecord: func() *auth.Account {
			return &auth.Account{}
		},
		GetID: func(record *auth.Account) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *auth.Account, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email_normalized"
		},
	}
	return repository.NewRepository(db, handlers)
}

// NewBunStore returns a store backed by db. Call CreateSchema before use on
// a fresh database.
func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{
		db:       db,
		accounts: NewAccountsRepository(db),
	}
}

// Accounts exposes the generic account repository.
func (s *BunStore) Accounts() repository.Repository[*auth.Account] {
	return s.accounts
}

// CreateSchema creates the auth tables when missing.
func (s *BunStore) CreateSchema(ctx context.Context) error {
	models := []any{
		(*auth.Account)(nil),
		(*auth.VerificationToken)(nil),
		(*auth.Notification)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*auth.Account)(nil)).
		Index("idx_accounts_email_normalized").
		Unique().
		IfNotExists().
		Column("email_normalized").
		Exec(ctx)
	return err
}

func (s *BunStore) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, f)
	}
}

func (s *BunStore) CreateAccount(ctx context.Context, factory auth.AccountFactory) (*auth.Registration, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	var reg *auth.Registration
	err := s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		count, err := tx.NewSelect().Model((*auth.Account)(nil)).Count(ctx)
		if err != nil {
			return err
		}

		if reg, err = factory(count); err != nil {
			return err
		}
		account := reg.Account

		exists, err := tx.NewSelect().
			Model((*auth.Account)(nil)).
			Where("?TableAlias.email_normalized = ?", account.EmailNormalized).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return auth.ErrDuplicateEmail()
		}

		if _, err := s.accounts.CreateTx(ctx, tx, account); err != nil {
			if isUniqueViolation(err) {
				return auth.ErrDuplicateEmail()
			}
			return err
		}

		if reg.Token != nil {
			if _, err := tx.NewInsert().Model(reg.Token).Exec(ctx); err != nil {
				return err
			}
		}

		if reg.Notification != nil {
			if _, err := tx.NewInsert().Model(reg.Notification).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *BunStore) FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	normalized := auth.NormalizeEmail(email)
	account, err := s.accounts.GetByIdentifier(ctx, normalized)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound(normalized)
		}
		return nil, err
	}
	return account, nil
}

func (s *BunStore) FindAccountByID(ctx context.Context, id uuid.UUID) (*auth.Account, error) {
	account, err := s.accounts.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound(id.String())
		}
		return nil, err
	}
	return account, nil
}

// UpdateVerificationState moves an account along the verification graph.
// The update is conditional on the state read, so a concurrent change
// surfaces as INVALID_STATE_TRANSITION.
func (s *BunStore) UpdateVerificationState(ctx context.Context, id uuid.UUID, state auth.VerificationState, at time.Time) (*auth.Account, error) {
	current, err := s.FindAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transitions.Check(current.VerificationState, state); err != nil {
		return nil, err
	}

	q := s.db.NewUpdate().
		Model((*auth.Account)(nil)).
		Set("verification_state = ?", state).
		Where("id = ?", id).
		Where("verification_state = ?", current.VerificationState)
	if state == auth.StateVerified {
		q = q.Set("verified_at = ?", at)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, auth.ErrInvalidTransition(current.VerificationState, state)
	}
	return s.FindAccountByID(ctx, id)
}

func (s *BunStore) CountAccounts(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*auth.Account)(nil)).Count(ctx)
}

func (s *BunStore) FindToken(ctx context.Context, value string) (*auth.VerificationToken, error) {
	return findToken(ctx, s.db, value)
}

func findToken(ctx context.Context, db bun.IDB, value string) (*auth.VerificationToken, error) {
	token := &auth.VerificationToken{}
	err := db.NewSelect().
		Model(token).
		Where("?TableAlias.value = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrTokenNotFound()
		}
		return nil, err
	}
	return token, nil
}

// ConsumeToken runs guard and the compare-and-set on consumed inside one
// transaction, together with the account update.
func (s *BunStore) ConsumeToken(ctx context.Context, value string, at time.Time, guard auth.TokenGuard) (*auth.Account, error) {
	var verified *auth.Account

	err := s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		token, err := findToken(ctx, tx, value)
		if err != nil {
			return err
		}

		var account *auth.Account
		found := &auth.Account{}
		err = tx.NewSelect().Model(found).Where("?TableAlias.id = ?", token.AccountID).Limit(1).Scan(ctx)
		switch {
		case err == nil:
			account = found
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if guard != nil {
			if err := guard(token, account); err != nil {
				return err
			}
		}
		if account == nil {
			return auth.ErrAccountNotFound(token.AccountID.String())
		}

		auth.MarkVerified(token, account, at)

		res, err := tx.NewUpdate().
			Model((*auth.VerificationToken)(nil)).
			Set("consumed = ?", true).
			Set("consumed_at = ?", at).
			Where("value = ?", value).
			Where("consumed = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return auth.ErrTokenAlreadyConsumed()
		}

		if _, err := tx.NewUpdate().
			Model((*auth.Account)(nil)).
			Set("verification_state = ?", account.VerificationState).
			Set("verified_at = ?", at).
			Where("id = ?", account.ID).
			Exec(ctx); err != nil {
			return err
		}

		verified = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verified, nil
}

func (s *BunStore) EnqueueNotification(ctx context.Context, n *auth.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := s.db.NewInsert().Model(n).Exec(ctx)
	return err
}

func (s *BunStore) PendingNotifications(ctx context.Context, createdBefore time.Time, maxAttempts, limit int) ([]*auth.Notification, error) {
	var rows []*auth.Notification
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.delivered_at IS NULL").
		Where("?TableAlias.attempts < ?", maxAttempts).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	out := make([]*auth.Notification, 0, len(rows))
	for _, n := range rows {
		if !n.CreatedAt.Before(createdBefore) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *BunStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*auth.Notification)(nil)).
		Set("delivered_at = ?", at).
		Set("last_error = ''").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (s *BunStore) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	_, err := s.db.NewUpdate().
		Model((*auth.Notification)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", cause).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
