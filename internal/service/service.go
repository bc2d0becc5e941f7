// service содержит бизнес-логику жизненного цикла сессий и токенов:
// выпуск пар access/refresh, ротацию refresh-токенов с отслеживанием
// семейства и каскадным отзывом при повторном использовании, лимит
// одновременных сессий, login/logout-оркестрацию и очистку просроченных
// записей.
//
// Основные аспекты:
//   - Экземпляр Service не хранит состояние запроса и безопасен для
//     конкурентного использования при потокобезопасном хранилище;
//   - события жизненного цикла публикуются в переданную шину синхронно и
//     fire-and-forget: сбой подписчика не влияет на операцию;
//   - ошибки аутентификации намеренно не детализируются для внешнего
//     вызывающего; причины доступны только внутренним подписчикам событий.
package service

import (
	"errors"
	"fmt"

	"session-service/internal/cache"
	"session-service/internal/config"
	"session-service/internal/duration"
	"session-service/internal/events"
	"session-service/internal/signer"
	"session-service/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Наружу оба случая неразличимы.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен по формату/подписи
	// или отсутствует в хранилище.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked — токен отозван (logout/ротация/компрометация) и
	// недействителен независимо от срока.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrRefreshTokenRequired — logout без refresh-токена при политике
	// config.LogoutError.
	ErrRefreshTokenRequired = errors.New("refresh token required for logout")

	// ErrUnknownUserType — тип пользователя не зарегистрирован в реестре.
	ErrUnknownUserType = errors.New("unknown user type")

	// ErrAccessTokenCollision — исчерпаны попытки сгенерировать уникальный
	// хэш access-токена.
	ErrAccessTokenCollision = errors.New("access token collision")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный
	// refresh-токен (крайне редкие коллизии хэша при сохранении).
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrEmailTaken — e-mail уже занят другим пользователем этого типа.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой.
	ErrEmptyPassword = errors.New("password is empty")
)

// Сроки действия по умолчанию, если спецификация в конфигурации не задана.
const (
	defaultAccessTTLMs  = int64(3_600_000)   // 1 час
	defaultRefreshTTLMs = int64(604_800_000) // 7 дней
)

// Registry — реестр репозиториев пользователей по типу.
// Заполняется на старте процесса и дальше только читается.
type Registry struct {
	repos map[string]storage.UserRepository
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]storage.UserRepository)}
}

// Register привязывает репозиторий к типу пользователя.
func (r *Registry) Register(userType string, repo storage.UserRepository) {
	r.repos[userType] = repo
}

// Lookup возвращает репозиторий типа либо типизированную ошибку —
// вместо «нулевой» проверки в точке использования.
func (r *Registry) Lookup(userType string) (storage.UserRepository, error) {
	repo, ok := r.repos[userType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUserType, userType)
	}

	return repo, nil
}

// Service реализует движок ротации и оркестрацию login/logout.
type Service struct {
	tokens storage.TokenStorage
	users  *Registry
	bus    *events.Bus
	cfg    config.AuthConfig

	access  *signer.Signer
	refresh *signer.Signer

	accessTTL  duration.Expiry
	refreshTTL duration.Expiry

	rcache cache.RefreshCache // может быть nil, если кэш не сконфигурирован
}

// New создаёт новый экземпляр Service. Секреты и спецификации сроков
// действия разрешаются здесь один раз; дальше по коду ходят готовые
// значения.
func New(tokens storage.TokenStorage, users *Registry, bus *events.Bus, cfg config.AuthConfig) (*Service, error) {
	const op = "service.New"

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, err := signer.New(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, err := signer.New(cfg.RefreshSecretOrFallback(), cfg.JWTAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Service{
		tokens:     tokens,
		users:      users,
		bus:        bus,
		cfg:        cfg,
		access:     access,
		refresh:    refresh,
		accessTTL:  duration.Parse(cfg.AccessTokenTTL, defaultAccessTTLMs),
		refreshTTL: duration.Parse(cfg.RefreshTokenTTL, defaultRefreshTTLMs),
	}, nil
}

// SetRefreshCache устанавливает кэш refresh-токенов (опционально).
func (s *Service) SetRefreshCache(c cache.RefreshCache) {
	s.rcache = c
}
