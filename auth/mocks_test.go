package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	"github.com/goliatone/go-bananabit/repository"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// MockMessenger is a mock implementation of auth.Messenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendVerificationMessage(ctx context.Context, to, token, baseURL string) error {
	args := m.Called(ctx, to, token, baseURL)
	return args.Error(0)
}

func (m *MockMessenger) SendWelcomeMessage(ctx context.Context, to string) error {
	args := m.Called(ctx, to)
	return args.Error(0)
}

// MockActivitySink records activity events
type MockActivitySink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (m *MockActivitySink) Record(_ context.Context, event auth.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockActivitySink) Types() []auth.ActivityEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	service   *auth.Service
	store     *repository.MemoryStore
	messenger *MockMessenger
	activity  *MockActivitySink
	clock     *testClock
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()

	f := &fixture{
		store:     repository.NewMemoryStore(),
		messenger: new(MockMessenger),
		activity:  &MockActivitySink{},
		clock:     newTestClock(),
	}

	base := []auth.ServiceOption{
		auth.WithPasswordCost(bcrypt.MinCost),
		auth.WithAsyncRunner(func(fn func()) { fn() }),
		auth.WithClock(f.clock.Now),
		auth.WithActivitySink(f.activity),
		auth.WithServiceLogger(bananabit.NopLogger()),
	}

	f.service = auth.NewService(f.store, f.messenger, auth.Settings{}, append(base, opts...)...)
	t.Cleanup(func() {
		f.messenger.AssertExpectations(t)
	})
	return f
}

func (f *fixture) expectDelivery() {
	f.messenger.On("SendVerificationMessage", mock.Anything, mock.Anything, mock.Anything, auth.DefaultBaseURL).Return(nil).Maybe()
	f.messenger.On("SendWelcomeMessage", mock.Anything, mock.Anything).Return(nil).Maybe()
}

// lastToken returns the token of the newest verification notification for to.
func (f *fixture) lastToken(to string) string {
	token := ""
	for _, n := range f.store.Notifications() {
		if n.Kind == auth.NotificationVerification && n.Recipient == to {
			token = n.Token
		}
	}
	return token
}

func (f *fixture) register(t *testing.T, email string) auth.PublicAccount {
	t.Helper()
	account, err := f.service.RegisterAccount(context.Background(), auth.RegisterAccountInput{
		Email:         email,
		Password:      "correct horse",
		CaptchaAnswer: "a cool dude",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return account
}

func (f *fixture) registerVerified(t *testing.T, email string) auth.PublicAccount {
	t.Helper()
	f.register(t, email)
	account, err := f.service.VerifyAccount(context.Background(), f.lastToken(email))
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return account
}
