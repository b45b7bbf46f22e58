package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-bananabit"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// RegisterAccountInput is the registration payload.
type RegisterAccountInput struct {
	Email         string `form:"email" json:"email"`
	Password      string `form:"password" json:"password"`
	CaptchaAnswer string `form:"captcha_answer" json:"captcha_answer"`
	Username      string `form:"username" json:"username"`
}

// Validate will run validation rules
func (r RegisterAccountInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.Username, validation.Length(0, 64)),
	)
}

// Service implements the account flows of the auth extension.
type Service struct {
	store        Store
	dispatcher   *Dispatcher
	machine      *VerificationStateMachine
	captcha      Captcha
	cfg          Config
	activity     ActivitySink
	logger       bananabit.Logger
	tokens       TokenSource
	now          func() time.Time
	async        func(func())
	passwordCost int

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger bananabit.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish account events.
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithTokenSource replaces the verification token generator.
func WithTokenSource(source TokenSource) ServiceOption {
	return func(s *Service) {
		if source != nil {
			s.tokens = source
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPasswordCost sets the bcrypt cost.
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) {
		s.passwordCost = cost
	}
}

// WithAsyncRunner replaces how fire-and-forget work is started.
func WithAsyncRunner(run func(func())) ServiceOption {
	return func(s *Service) {
		if run != nil {
			s.async = run
		}
	}
}

// NewService returns the account service.
func NewService(store Store, messenger Messenger, cfg Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = Settings{}
	}
	s := &Service{
		store:        store,
		cfg:          cfg,
		captcha:      NewCaptcha(cfg.GetCaptchaQuestion(), cfg.GetCaptchaAnswer()),
		activity:     noopActivitySink{},
		logger:       bananabit.DefaultLogger("auth"),
		tokens:       RandomToken,
		now:          time.Now,
		async:        func(f func()) { go f() },
		passwordCost: passwordHashCost(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.machine = NewVerificationStateMachine(WithStateMachineClock(s.now))
	s.dispatcher = NewDispatcher(store, messenger, cfg,
		WithDispatcherLogger(s.logger),
		WithDispatcherClock(s.now),
		WithDispatcherActivitySink(s.activity),
	)

	return s
}

// Captcha returns the registration challenge.
func (s *Service) Captcha() Captcha {
	return s.captcha
}

// Dispatcher returns the notification dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// StateMachine returns the verification state machine.
func (s *Service) StateMachine() *VerificationStateMachine {
	return s.machine
}

// RegisterAccount creates an unverified account and sends its verification
// token. When the send fails the account still exists: the public account
// is returned together with a VERIFICATION_EMAIL_FAILED error.
func (s *Service) RegisterAccount(ctx context.Context, in RegisterAccountInput) (PublicAccount, error) {
	select {
	case <-ctx.Done():
		return PublicAccount{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account registration")
	default:
	}

	in.Email = strings.TrimSpace(in.Email)
	if err := in.Validate(); err != nil {
		return PublicAccount{}, ErrInvalidRegistration(err)
	}

	if !s.captcha.Check(in.CaptchaAnswer) {
		return PublicAccount{}, ErrCaptchaMismatch()
	}

	normalized := NormalizeEmail(in.Email)
	if _, err := s.store.FindAccountByEmail(ctx, normalized); err == nil {
		return PublicAccount{}, ErrDuplicateEmail()
	} else if !bananabit.HasTextCode(err, TextCodeAccountNotFound) {
		return PublicAccount{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
	}

	hash, err := HashPassword(in.Password, s.passwordCost)
	if err != nil {
		return PublicAccount{}, err
	}

	tokenValue, err := s.tokens()
	if err != nil {
		return PublicAccount{}, err
	}

	id := s.accountID(normalized)
	now := s.now()
	email := in.Email

	reg, err := s.store.CreateAccount(ctx, func(existing int) (*Registration, error) {
		role := RoleSubscriber
		if existing == 0 {
			role = RoleAdmin
		}

		account := &Account{
			ID:                id,
			Email:             email,
			EmailNormalized:   normalized,
			Username:          getUsername(in.Username, email),
			PasswordHash:      hash,
			Role:              role,
			VerificationState: StateUnverified,
			CreatedAt:         now,
		}

		return &Registration{
			Account: account,
			Token:   NewVerificationToken(tokenValue, id, now, s.cfg.GetTokenTTL()),
			Notification: &Notification{
				ID:        uuid.New(),
				Kind:      NotificationVerification,
				AccountID: id,
				Recipient: email,
				Token:     tokenValue,
				CreatedAt: now,
			},
		}, nil
	})
	if err != nil {
		if bananabit.HasTextCode(err, TextCodeDuplicateEmail) {
			return PublicAccount{}, err
		}
		return PublicAccount{}, goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	account := reg.Account
	s.logger.Info("account registered", "account", account.ID, "role", account.Role)
	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"role": account.Role,
		},
	})

	if err := s.dispatcher.Dispatch(ctx, reg.Notification); err != nil {
		s.logger.Error("verification email failed", "account", account.ID, "error", err)
		return account.Public(), ErrVerificationEmailFailed(account.ID, err)
	}

	return account.Public(), nil
}

// VerifyAccount consumes token and marks its account verified. A welcome
// message is sent after commit; its failure is only logged.
func (s *Service) VerifyAccount(ctx context.Context, token string) (PublicAccount, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return PublicAccount{}, ErrTokenNotFound()
	}

	now := s.now()
	account, err := s.store.ConsumeToken(ctx, token, now, s.machine.Guard(now))
	if err != nil {
		if isVerificationError(err) {
			return PublicAccount{}, err
		}
		return PublicAccount{}, goerrors.Wrap(err, goerrors.CategoryInternal, "account verification transaction failed")
	}

	s.logger.Info("account verified", "account", account.ID)
	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountVerified,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"from": StateUnverified,
			"to":   StateVerified,
		},
	})

	s.sendWelcome(context.WithoutCancel(ctx), account, now)

	return account.Public(), nil
}

func (s *Service) sendWelcome(ctx context.Context, account *Account, at time.Time) {
	welcome := &Notification{
		ID:        uuid.New(),
		Kind:      NotificationWelcome,
		AccountID: account.ID,
		Recipient: account.Email,
		CreatedAt: at,
	}

	s.async(func() {
		if err := s.store.EnqueueNotification(ctx, welcome); err != nil {
			s.logger.Error("failed to enqueue welcome email", "account", account.ID, "error", err)
			return
		}
		if err := s.dispatcher.Dispatch(ctx, welcome); err != nil {
			s.logger.Warn("welcome email failed", "account", account.ID, "error", err)
		}
	})
}

// Authenticate checks credentials. Unknown emails and wrong passwords give
// the same INVALID_CREDENTIALS error; ACCOUNT_NOT_VERIFIED is only reported
// once the password matched.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	account, err := s.store.FindAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !bananabit.HasTextCode(err, TextCodeAccountNotFound) {
			return Identity{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up account")
		}
		ComparePasswordAndHash(password, s.dummyPasswordHash())
		s.recordLoginFailure(ctx, "")
		return Identity{}, ErrInvalidCredentials()
	}

	if !ComparePasswordAndHash(password, account.PasswordHash) {
		s.recordLoginFailure(ctx, account.ID.String())
		return Identity{}, ErrInvalidCredentials()
	}

	if !account.IsVerified() {
		s.recordLoginFailure(ctx, account.ID.String())
		return Identity{}, ErrAccountNotVerified()
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		AccountID: account.ID.String(),
	})

	return account.Identity(), nil
}

// IsFirstAccount reports whether no account exists yet, i.e. the next
// registration becomes the admin.
func (s *Service) IsFirstAccount(ctx context.Context) (bool, error) {
	count, err := s.store.CountAccounts(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count accounts")
	}
	return count == 0, nil
}

// FindAccount returns the public projection of the account with id.
func (s *Service) FindAccount(ctx context.Context, id uuid.UUID) (PublicAccount, error) {
	account, err := s.store.FindAccountByID(ctx, id)
	if err != nil {
		return PublicAccount{}, err
	}
	return account.Public(), nil
}

func (s *Service) accountID(normalizedEmail string) uuid.UUID {
	if s.cfg.GetDeterministicIDs() {
		if id, err := hashid.NewUUID(normalizedEmail); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("bananabit-dummy-password", s.passwordCost)
	})
	return s.dummyHash
}

func (s *Service) recordLoginFailure(ctx context.Context, accountID string) {
	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		AccountID: accountID,
	})
}

func (s *Service) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Error("activity sink failed", "event", event.EventType, "error", err)
	}
}

func isVerificationError(err error) bool {
	for _, code := range []string{
		TextCodeTokenNotFound,
		TextCodeTokenExpired,
		TextCodeTokenAlreadyConsumed,
		TextCodeAccountNotFound,
		TextCodeInvalidStateTransition,
	} {
		if bananabit.HasTextCode(err, code) {
			return true
		}
	}
	return false
}
