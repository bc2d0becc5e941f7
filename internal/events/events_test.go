package events

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"session-service/internal/models"
)

func TestPublish_DeliversToSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var got []Event
	bus.Subscribe(CleanupCompleted, func(_ context.Context, e Event) {
		got = append(got, e)
	})

	bus.Publish(context.Background(), CleanupCompletedEvent{Expired: 3})

	require.Len(t, got, 1)
	payload, ok := got[0].(CleanupCompletedEvent)
	require.True(t, ok)
	require.Equal(t, 3, payload.Expired)
}

func TestPublish_NoSubscribers_NoOp(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())
	bus.Publish(context.Background(), LogoutEvent{User: &models.User{}})
}

func TestPublish_SubscriberPanic_DoesNotPropagate(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var delivered bool
	bus.Subscribe(Logout, func(context.Context, Event) { panic("boom") })
	bus.Subscribe(Logout, func(context.Context, Event) { delivered = true })

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), LogoutEvent{User: &models.User{}})
	})

	// Паника первого подписчика не мешает доставке второму.
	require.True(t, delivered)
}

func TestPublish_OnlyMatchingEventName(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var logins, logouts int
	bus.Subscribe(LoginSuccess, func(context.Context, Event) { logins++ })
	bus.Subscribe(Logout, func(context.Context, Event) { logouts++ })

	bus.Publish(context.Background(), LogoutEvent{User: &models.User{}})

	require.Equal(t, 0, logins)
	require.Equal(t, 1, logouts)
}

func TestSubscription_Unsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var calls int
	sub := bus.Subscribe(TokenCreated, func(context.Context, Event) { calls++ })

	bus.Publish(context.Background(), TokenCreatedEvent{})
	sub.Unsubscribe()
	bus.Publish(context.Background(), TokenCreatedEvent{})

	require.Equal(t, 1, calls)

	// Повторный Unsubscribe безопасен.
	sub.Unsubscribe()
}

func TestOff_RemovesAllSubscribersOfEvent(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var calls int
	bus.Subscribe(TokenRevoked, func(context.Context, Event) { calls++ })
	bus.Subscribe(TokenRevoked, func(context.Context, Event) { calls++ })
	bus.Subscribe(Logout, func(context.Context, Event) { calls++ })

	bus.Off(TokenRevoked)

	bus.Publish(context.Background(), TokenRevokedEvent{})
	bus.Publish(context.Background(), LogoutEvent{})

	require.Equal(t, 1, calls)
}

func TestReset_RemovesEverything(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var calls int
	bus.Subscribe(TokenRevoked, func(context.Context, Event) { calls++ })
	bus.Subscribe(Logout, func(context.Context, Event) { calls++ })

	bus.Reset()

	bus.Publish(context.Background(), TokenRevokedEvent{})
	bus.Publish(context.Background(), LogoutEvent{})

	require.Equal(t, 0, calls)
}

func TestPublish_ConcurrentWithSubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus(slog.Default())

	var mu sync.Mutex
	var calls int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(TokenExpired, func(context.Context, Event) {
				mu.Lock()
				calls++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), TokenExpiredEvent{})
		}()
	}
	wg.Wait()

	// Точное число доставок зависит от порядка, важно отсутствие гонок/паник.
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, calls, 0)
}
