// metrics публикует счётчики жизненного цикла сессий в Prometheus.
// Счётчики наполняются подписками на шину событий: сервисный код о
// метриках не знает.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"session-service/internal/events"
)

// Metrics — набор счётчиков сервиса сессий.
type Metrics struct {
	loginAttempts    *prometheus.CounterVec
	tokensIssued     prometheus.Counter
	tokensRefreshed  prometheus.Counter
	tokensRevoked    prometheus.Counter
	familiesRevoked  prometheus.Counter
	sessionsCreated  prometheus.Counter
	logouts          prometheus.Counter
	cleanupRemoved   prometheus.Counter
	subscriberPanics prometheus.Counter
}

// New регистрирует счётчики в переданном реестре.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "session_login_attempts_total",
			Help: "Попытки входа по результату.",
		}, []string{"result"}),
		tokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_tokens_issued_total",
			Help: "Выпущенные пары access/refresh.",
		}),
		tokensRefreshed: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_tokens_refreshed_total",
			Help: "Успешные ротации refresh-токенов.",
		}),
		tokensRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_tokens_revoked_total",
			Help: "Отозванные refresh-токены.",
		}),
		familiesRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_token_families_revoked_total",
			Help: "Каскадные отзывы семейств (повторное использование).",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_sessions_created_total",
			Help: "Созданные сессии.",
		}),
		logouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_logouts_total",
			Help: "Завершённые logout.",
		}),
		cleanupRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_cleanup_removed_total",
			Help: "Просроченные refresh-токены, удалённые очисткой.",
		}),
		subscriberPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "session_event_subscriber_panics_total",
			Help: "Паники подписчиков шины событий.",
		}),
	}
}

// Observe подписывает счётчики на шину событий.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.Subscribe(events.LoginSuccess, func(context.Context, events.Event) {
		m.loginAttempts.WithLabelValues("success").Inc()
	})
	bus.Subscribe(events.LoginFailed, func(context.Context, events.Event) {
		m.loginAttempts.WithLabelValues("failure").Inc()
	})
	bus.Subscribe(events.TokenCreated, func(context.Context, events.Event) {
		m.tokensIssued.Inc()
	})
	bus.Subscribe(events.TokenRefreshed, func(context.Context, events.Event) {
		m.tokensRefreshed.Inc()
	})
	bus.Subscribe(events.TokenRevoked, func(context.Context, events.Event) {
		m.tokensRevoked.Inc()
	})
	bus.Subscribe(events.TokenFamilyRevoked, func(context.Context, events.Event) {
		m.familiesRevoked.Inc()
	})
	bus.Subscribe(events.SessionCreated, func(context.Context, events.Event) {
		m.sessionsCreated.Inc()
	})
	bus.Subscribe(events.Logout, func(context.Context, events.Event) {
		m.logouts.Inc()
	})
	bus.Subscribe(events.CleanupCompleted, func(_ context.Context, e events.Event) {
		if done, ok := e.(events.CleanupCompletedEvent); ok {
			m.cleanupRemoved.Add(float64(done.Expired))
		}
	})
	bus.OnPanic(func(string) {
		m.subscriberPanics.Inc()
	})
}
