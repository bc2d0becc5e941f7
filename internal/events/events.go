// events реализует типизированную шину событий жизненного цикла сессий.
//
// Шина — процесс-локальный экземпляр, передаваемый движку явно при
// конструировании; глобального состояния нет, тесты создают изолированные
// экземпляры. Доставка синхронная и fire-and-forget: паника подписчика
// перехватывается и логируется на границе, но никогда не доходит до
// операции, породившей событие.
package events

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Имена событий жизненного цикла.
const (
	LoginAttempt = "login.attempt"
	LoginSuccess = "login.success"
	LoginFailed  = "login.failed"

	TokenCreated       = "token.created"
	TokenRefreshed     = "token.refreshed"
	TokenRevoked       = "token.revoked"
	TokenExpired       = "token.expired"
	TokenFamilyRevoked = "token.familyRevoked"

	SessionCreated   = "session.created"
	SessionDestroyed = "session.destroyed"

	Logout         = "logout"
	LogoutAll      = "logout.all"
	LogoutFailsafe = "logout.failsafe"

	CleanupCompleted = "cleanup.completed"
)

// Event — событие жизненного цикла; конкретные полезные нагрузки
// объявлены в payload.go.
type Event interface {
	// EventName возвращает имя события (одна из констант выше).
	EventName() string
}

// Handler — подписчик события. Паника внутри обработчика гасится шиной.
type Handler func(ctx context.Context, e Event)

// Subscription позволяет отписать конкретный обработчик.
type Subscription struct {
	bus   *Bus
	event string
	id    uint64
}

// Unsubscribe снимает подписку; повторный вызов безопасен.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}

	s.bus.remove(s.event, s.id)
	s.bus = nil
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// Bus — шина событий. Безопасна для конкурентного использования.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[string][]handlerEntry
	log     *slog.Logger
	onPanic func(event string)
}

// NewBus создаёт шину. Переданный логгер используется для фиксации паник
// подписчиков; nil заменяется на slog.Default().
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}

	return &Bus{
		subs: make(map[string][]handlerEntry),
		log:  log,
	}
}

// OnPanic устанавливает наблюдателя паник подписчиков (метрики).
// Вызывается после логирования; устанавливать до начала публикаций.
func (b *Bus) OnPanic(fn func(event string)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onPanic = fn
}

// Subscribe подписывает обработчик на событие.
func (b *Bus) Subscribe(event string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[event] = append(b.subs[event], handlerEntry{id: b.nextID, fn: fn})

	return &Subscription{bus: b, event: event, id: b.nextID}
}

// Publish синхронно доставляет событие всем подписчикам его имени.
// Ошибки и паники подписчиков не влияют на вызывающую операцию.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	entries := b.subs[e.EventName()]
	handlers := make([]Handler, len(entries))
	for i, entry := range entries {
		handlers[i] = entry.fn
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.deliver(ctx, e, fn)
	}
}

// deliver вызывает один обработчик под recover.
func (b *Bus) deliver(ctx context.Context, e Event, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event_subscriber_panic",
				slog.String("event", e.EventName()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)

			b.mu.RLock()
			observer := b.onPanic
			b.mu.RUnlock()
			if observer != nil {
				observer(e.EventName())
			}
		}
	}()

	fn(ctx, e)
}

// Off снимает всех подписчиков одного события.
func (b *Bus) Off(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, event)
}

// Reset снимает всех подписчиков всех событий (teardown в тестах).
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = make(map[string][]handlerEntry)
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[event]
	for i, entry := range entries {
		if entry.id == id {
			b.subs[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}

	if len(b.subs[event]) == 0 {
		delete(b.subs, event)
	}
}
