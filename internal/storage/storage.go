// storage задаёт контракты долговременного хранилища: записи access- и
// refresh-токенов, а также репозиторий пользователей одного типа.
//
// Токены адресуются хэшем подписанной строки (sha256 → base64url);
// сырые токены в хранилище не попадают. Все операции принимают контекст
// и возвращают ошибки хранилища как есть — ретраи и таймауты остаются
// на стороне реализации и вызывающего.
package storage

import (
	"context"
	"errors"
	"time"

	"session-service/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/хэш токена).
	// Хранилище обязано отвергать дубликат, а не молча перезаписывать его.
	ErrAlreadyExists = errors.New("already exists")
)

// RefreshTokenStorage выполняет операции над записями refresh-токенов.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен.
	// Повтор хэша -> ErrAlreadyExists.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshTokenIfActive — атомарный «захват» токена: проставляет
	// revoked_at только если токен ещё не отозван.
	// Возвращает:
	//   (true, nil)  — токен был активен и отозван сейчас;
	//   (false, nil) — токен существует, но уже был отозван;
	//   (false, ErrNotFound) — токен не найден.
	// При конкурентных ротациях одного токена ровно один вызов получает true.
	RevokeRefreshTokenIfActive(ctx context.Context, hash string, now time.Time) (bool, error)
	// TouchRefreshToken обновляет last_used_at (режим без ротации).
	TouchRefreshToken(ctx context.Context, hash string, now time.Time) error
	// ActiveRefreshTokensByUser возвращает неотозванные токены владельца
	// в порядке создания (старые первыми — для детерминированного вытеснения).
	ActiveRefreshTokensByUser(ctx context.Context, userID uuid.UUID, userType string) ([]*models.RefreshToken, error)
	// ActiveRefreshTokensByFamily возвращает неотозванные токены семейства.
	ActiveRefreshTokensByFamily(ctx context.Context, familyID string) ([]*models.RefreshToken, error)
	// ExpiredRefreshTokens возвращает токены с expires_at <= now.
	ExpiredRefreshTokens(ctx context.Context, now time.Time) ([]*models.RefreshToken, error)
	// DeleteRefreshToken физически удаляет запись токена.
	DeleteRefreshToken(ctx context.Context, hash string) error
}

// AccessTokenStorage выполняет операции над записями access-токенов.
type AccessTokenStorage interface {
	// SaveAccessToken сохраняет новую запись access-токена.
	// Повтор хэша -> ErrAlreadyExists.
	SaveAccessToken(ctx context.Context, token *models.AccessToken) error
	// AccessTokenByHash находит запись по хэшу токена.
	AccessTokenByHash(ctx context.Context, hash string) (*models.AccessToken, error)
	// TouchAccessToken обновляет last_accessed_at.
	TouchAccessToken(ctx context.Context, hash string, now time.Time) error
	// DeleteAccessToken удаляет запись токена, принадлежащую владельцу.
	// Чужой токен с тем же хэшем задет быть не может.
	DeleteAccessToken(ctx context.Context, hash string, userID uuid.UUID, userType string) error
	// DeleteAccessTokensByUser удаляет все записи access-токенов владельца.
	DeleteAccessTokensByUser(ctx context.Context, userID uuid.UUID, userType string) error
}

// TokenStorage задаёт контракт хранилища токенов целиком.
type TokenStorage interface {
	RefreshTokenStorage
	AccessTokenStorage
	Close()
}

// UserRepository выполняет операции над пользователями одного типа.
// Привязка «тип пользователя -> репозиторий» живёт в service.Registry.
type UserRepository interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// FirstByFields находит первого пользователя по набору полей
	// (например, {"email": ...}); пароль в поля не входит никогда.
	FirstByFields(ctx context.Context, fields map[string]string) (*models.User, error)
}
