package metrics

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"session-service/internal/events"
)

func newBus() *events.Bus {
	return events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMetrics_CountLifecycleEvents(t *testing.T) {
	bus := newBus()
	m := New(prometheus.NewRegistry())
	m.Observe(bus)

	ctx := context.Background()

	bus.Publish(ctx, events.LoginSuccessEvent{})
	bus.Publish(ctx, events.LoginFailedEvent{Reason: "invalid password"})
	bus.Publish(ctx, events.LoginFailedEvent{Reason: "user not found"})
	bus.Publish(ctx, events.TokenCreatedEvent{})
	bus.Publish(ctx, events.TokenRefreshedEvent{})
	bus.Publish(ctx, events.TokenRevokedEvent{})
	bus.Publish(ctx, events.TokenRevokedEvent{})
	bus.Publish(ctx, events.TokenFamilyRevokedEvent{})
	bus.Publish(ctx, events.SessionCreatedEvent{})
	bus.Publish(ctx, events.LogoutEvent{})
	bus.Publish(ctx, events.CleanupCompletedEvent{Expired: 7})

	require.Equal(t, 1.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("success")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tokensIssued))
	require.Equal(t, 1.0, testutil.ToFloat64(m.tokensRefreshed))
	require.Equal(t, 2.0, testutil.ToFloat64(m.tokensRevoked))
	require.Equal(t, 1.0, testutil.ToFloat64(m.familiesRevoked))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionsCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(m.logouts))
	require.Equal(t, 7.0, testutil.ToFloat64(m.cleanupRemoved))
}

func TestMetrics_SubscriberPanicCounted(t *testing.T) {
	bus := newBus()
	m := New(prometheus.NewRegistry())
	m.Observe(bus)

	bus.Subscribe(events.Logout, func(context.Context, events.Event) {
		panic("boom")
	})

	bus.Publish(context.Background(), events.LogoutEvent{})

	require.Equal(t, 1.0, testutil.ToFloat64(m.subscriberPanics))
}
