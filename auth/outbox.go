package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-bananabit"
	goerrors "github.com/goliatone/go-errors"
)

// Dispatcher delivers committed notifications through the messenger and
// records the outcome in the outbox.
type Dispatcher struct {
	outbox    Outbox
	messenger Messenger
	baseURL   string
	timeout   time.Duration
	now       func() time.Time
	activity  ActivitySink
	logger    bananabit.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger bananabit.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherClock injects a custom clock.
func WithDispatcherClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.now = clock
		}
	}
}

// WithDispatcherActivitySink records a delivery failure event for every
// failed send.
func WithDispatcherActivitySink(sink ActivitySink) DispatcherOption {
	return func(d *Dispatcher) {
		d.activity = normalizeActivitySink(sink)
	}
}

// NewDispatcher returns a dispatcher using cfg for the base URL and the send timeout.
func NewDispatcher(outbox Outbox, messenger Messenger, cfg Config, opts ...DispatcherOption) *Dispatcher {
	if cfg == nil {
		cfg = Settings{}
	}
	d := &Dispatcher{
		outbox:    outbox,
		messenger: messenger,
		baseURL:   cfg.GetBaseURL(),
		timeout:   durationOr(cfg.GetEmailTimeout(), DefaultEmailTimeout),
		now:       time.Now,
		activity:  noopActivitySink{},
		logger:    bananabit.DefaultLogger("outbox"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch sends n with a bounded timeout and marks it delivered or failed.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if n == nil {
		return nil
	}

	sendErr := d.sendWithTimeout(ctx, n)
	if sendErr != nil {
		n.Attempts++
		n.LastError = sendErr.Error()
		if err := d.outbox.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil {
			d.logger.Error("failed to record notification failure", "notification", n.ID, "error", err)
		}
		d.logger.Warn("notification delivery failed",
			"notification", n.ID, "kind", n.Kind, "attempts", n.Attempts, "error", sendErr)

		event := ActivityEvent{
			EventType: ActivityEventDeliveryFailure,
			AccountID: n.AccountID.String(),
			Metadata: map[string]any{
				"notification_id": n.ID.String(),
				"kind":            string(n.Kind),
				"attempts":        n.Attempts,
			},
			OccurredAt: d.now(),
		}
		if err := d.activity.Record(ctx, event); err != nil {
			d.logger.Error("activity sink failed", "event", event.EventType, "error", err)
		}

		return goerrors.Wrap(sendErr, goerrors.CategoryOperation, fmt.Sprintf("failed to deliver %s notification", n.Kind)).
			WithTextCode(TextCodeNotificationDeliveryError).
			WithMetadata(map[string]any{
				"notification_id": n.ID.String(),
				"attempts":        n.Attempts,
			})
	}

	at := d.now()
	n.DeliveredAt = &at
	if err := d.outbox.MarkDelivered(ctx, n.ID, at); err != nil {
		d.logger.Error("failed to record notification delivery", "notification", n.ID, "error", err)
	}
	d.logger.Debug("notification delivered", "notification", n.ID, "kind", n.Kind)
	return nil
}

func (d *Dispatcher) sendWithTimeout(ctx context.Context, n *Notification) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.send(ctx, n)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "messenger did not answer in time")
	}
}

func (d *Dispatcher) send(ctx context.Context, n *Notification) error {
	switch n.Kind {
	case NotificationVerification:
		return d.messenger.SendVerificationMessage(ctx, n.Recipient, n.Token, d.baseURL)
	case NotificationWelcome:
		return d.messenger.SendWelcomeMessage(ctx, n.Recipient)
	default:
		return goerrors.New(fmt.Sprintf("unknown notification kind %q", n.Kind), goerrors.CategoryInternal)
	}
}

// Relay retries pending notifications on an interval.
type Relay struct {
	dispatcher  *Dispatcher
	outbox      Outbox
	interval    time.Duration
	maxAttempts int
	batchSize   int
	logger      bananabit.Logger
}

// RelayOption customizes a Relay.
type RelayOption func(*Relay)

// WithRelayBatchSize sets how many notifications a flush handles.
func WithRelayBatchSize(size int) RelayOption {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithRelayLogger sets the relay logger.
func WithRelayLogger(logger bananabit.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRelay returns a relay driven by cfg's interval and attempt bound.
// Non-positive values fall back to the defaults.
func NewRelay(dispatcher *Dispatcher, cfg Config, opts ...RelayOption) *Relay {
	if cfg == nil {
		cfg = Settings{}
	}
	r := &Relay{
		dispatcher:  dispatcher,
		outbox:      dispatcher.outbox,
		interval:    durationOr(cfg.GetRelayInterval(), DefaultRelayInterval),
		maxAttempts: cfg.GetRelayMaxAttempts(),
		batchSize:   50,
		logger:      bananabit.DefaultLogger("relay"),
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = DefaultRelayMaxAttempts
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Interval is the time between two flushes.
func (r *Relay) Interval() time.Duration {
	return r.interval
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.Error("outbox flush failed", "error", err)
			}
		}
	}
}

// Flush dispatches one batch of pending notifications older than one
// interval and returns how many were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	cutoff := r.dispatcher.now().Add(-r.interval)
	pending, err := r.outbox.PendingNotifications(ctx, cutoff, r.maxAttempts, r.batchSize)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list pending notifications")
	}

	delivered := 0
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := r.dispatcher.Dispatch(ctx, n); err != nil {
			continue
		}
		delivered++
	}

	if len(pending) > 0 {
		r.logger.Info("outbox flushed", "pending", len(pending), "delivered", delivered)
	}
	return delivered, nil
}
