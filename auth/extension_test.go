package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-bananabit"
	"github.com/goliatone/go-bananabit/auth"
	"github.com/goliatone/go-bananabit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExtension_Descriptor(t *testing.T) {
	f := newFixture(t)
	ext := auth.NewExtension(f.service)

	assert.Equal(t, "core.auth", ext.ID())
	assert.NoError(t, bananabit.ValidateExtensionID(ext.ID()))
	assert.NotEmpty(t, ext.Name())
	assert.NotEmpty(t, ext.Version())

	paths := map[string]bool{}
	for _, rt := range ext.Routes() {
		paths[rt.Method+" "+rt.Path] = true
		if rt.Path == "/admin" {
			assert.True(t, rt.AdminOnly)
		}
	}
	assert.True(t, paths["POST /register"])
	assert.True(t, paths["GET /verify-email"])
	assert.True(t, paths["POST /login"])
}

func TestExtension_Components(t *testing.T) {
	f := newFixture(t)
	f.expectDelivery()

	ext := auth.NewExtension(f.service, auth.WithExtensionLogger(bananabit.NopLogger()))
	registry := bananabit.NewRegistry(bananabit.WithRegistryLogger(bananabit.NopLogger()))
	require.NoError(t, registry.Register(context.Background(), ext))
	require.NoError(t, registry.ActivateAll(context.Background()))

	composition, err := registry.Compose()
	require.NoError(t, err)
	components := composition.Components

	for _, key := range []string{"LoginForm", "RegisterForm", "UserInfo"} {
		c, ok := components.Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, auth.ExtensionID, c.Owner)
	}

	html, err := components.Render(context.Background(), "LoginForm", nil)
	require.NoError(t, err)
	assert.Contains(t, html, `action="/login"`)

	html, err = components.Render(context.Background(), "RegisterForm", nil)
	require.NoError(t, err)
	assert.Contains(t, html, "bananabit?")
	assert.Contains(t, html, "first account becomes the site administrator")

	account := f.register(t, "owner@example.com")

	html, err = components.Render(context.Background(), "RegisterForm", nil)
	require.NoError(t, err)
	assert.NotContains(t, html, "first account becomes the site administrator")

	html, err = components.Render(context.Background(), "UserInfo", map[string]any{"account": account})
	require.NoError(t, err)
	assert.Contains(t, html, "owner")
	assert.Contains(t, html, "role-admin")
	assert.Contains(t, html, "Email not verified")

	html, err = components.Render(context.Background(), "UserInfo", map[string]any{"account_id": account.ID.String()})
	require.NoError(t, err)
	assert.Contains(t, html, "role-admin")

	html, err = components.Render(context.Background(), "UserInfo", nil)
	require.NoError(t, err)
	assert.Contains(t, html, "user-anonymous")

	_, err = components.Render(context.Background(), "UserInfo", map[string]any{"account_id": "not-a-uuid"})
	assert.Error(t, err)
}

func TestExtension_RendersBeforeInitFail(t *testing.T) {
	f := newFixture(t)
	ext := auth.NewExtension(f.service)

	for _, c := range ext.Components() {
		if c.Key == "LoginForm" {
			_, err := c.Renderer(context.Background(), nil)
			assert.Error(t, err)
		}
	}
}

func TestExtension_ShutdownStopsRelay(t *testing.T) {
	f := newFixture(t)
	relay := auth.NewRelay(f.service.Dispatcher(), auth.Settings{RelayInterval: time.Hour})
	ext := auth.NewExtension(f.service,
		auth.WithExtensionLogger(bananabit.NopLogger()),
		auth.WithRelay(relay),
	)

	require.NoError(t, ext.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, ext.Shutdown(ctx))
	assert.NoError(t, ext.Shutdown(ctx), "second shutdown is a no-op")
}

func TestExtension_ShutdownRightAfterInit(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 50; i++ {
		relay := auth.NewRelay(f.service.Dispatcher(), auth.Settings{RelayInterval: time.Hour},
			auth.WithRelayLogger(bananabit.NopLogger()))
		ext := auth.NewExtension(f.service,
			auth.WithExtensionLogger(bananabit.NopLogger()),
			auth.WithRelay(relay),
		)
		require.NoError(t, ext.Init(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		assert.NoError(t, ext.Shutdown(ctx))
		cancel()
	}
}

func TestNewRelay_DefaultsNonPositiveSettings(t *testing.T) {
	f := newFixture(t)

	relay := auth.NewRelay(f.service.Dispatcher(), &config.Config{})
	assert.Equal(t, auth.DefaultRelayInterval, relay.Interval())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, relay.Run(ctx), context.DeadlineExceeded)
}

func TestRelay_FlushRetriesFailedNotifications(t *testing.T) {
	f := newFixture(t)
	f.messenger.On("SendVerificationMessage", mock.Anything, "a@example.com", mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Once()

	_, err := f.service.RegisterAccount(context.Background(), auth.RegisterAccountInput{
		Email:         "a@example.com",
		Password:      "correct horse",
		CaptchaAnswer: "a cool dude",
	})
	require.True(t, bananabit.HasTextCode(err, auth.TextCodeVerificationEmailFailed))

	relay := auth.NewRelay(f.service.Dispatcher(), auth.Settings{RelayInterval: time.Minute},
		auth.WithRelayLogger(bananabit.NopLogger()))

	delivered, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered, "rows younger than one interval are left to the request path")

	f.clock.Advance(2 * time.Minute)
	f.messenger.On("SendVerificationMessage", mock.Anything, "a@example.com", mock.Anything, mock.Anything).
		Return(nil).Once()

	delivered, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	notifications := f.store.Notifications()
	require.Len(t, notifications, 1)
	assert.True(t, notifications[0].Delivered())

	delivered, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
}

func TestRelay_StopsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.messenger.On("SendVerificationMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp down")).Times(3)

	_, err := f.service.RegisterAccount(context.Background(), auth.RegisterAccountInput{
		Email:         "a@example.com",
		Password:      "correct horse",
		CaptchaAnswer: "a cool dude",
	})
	require.Error(t, err)

	relay := auth.NewRelay(f.service.Dispatcher(), auth.Settings{RelayInterval: time.Minute, RelayMaxAttempts: 3},
		auth.WithRelayLogger(bananabit.NopLogger()))

	for i := 0; i < 4; i++ {
		f.clock.Advance(2 * time.Minute)
		delivered, err := relay.Flush(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, delivered)
	}

	notifications := f.store.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, 3, notifications[0].Attempts)
}

func TestDispatcher_Timeout(t *testing.T) {
	f := newFixture(t)
	block := make(chan struct{})
	defer close(block)

	messenger := auth.MessengerFuncs{
		Verification: func(ctx context.Context, to, token, baseURL string) error {
			<-block
			return nil
		},
	}
	sink := &MockActivitySink{}
	dispatcher := auth.NewDispatcher(f.store, messenger, auth.Settings{EmailTimeout: 20 * time.Millisecond},
		auth.WithDispatcherLogger(bananabit.NopLogger()),
		auth.WithDispatcherActivitySink(sink))

	n := &auth.Notification{Kind: auth.NotificationVerification, Recipient: "a@example.com", Token: "tok"}
	require.NoError(t, f.store.EnqueueNotification(context.Background(), n))

	err := dispatcher.Dispatch(context.Background(), n)
	require.Error(t, err)
	assert.True(t, bananabit.HasTextCode(err, auth.TextCodeNotificationDeliveryError))
	assert.Equal(t, 1, n.Attempts)
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventDeliveryFailure}, sink.Types())
}
