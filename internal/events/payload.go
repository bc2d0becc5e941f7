package events

import "session-service/internal/models"

// Полезные нагрузки событий. Каждый тип соответствует ровно одному имени
// события; подписчик приводит Event к нужному типу.

// LoginAttemptEvent — попытка входа. Fields — учётные данные без пароля.
type LoginAttemptEvent struct {
	UserType string
	Fields   map[string]string
}

func (LoginAttemptEvent) EventName() string { return LoginAttempt }

// LoginFailedEvent — неуспешный вход; Reason доступен только внутренним
// подписчикам (аудит), наружу причина не отдаётся.
type LoginFailedEvent struct {
	UserType string
	Fields   map[string]string
	Reason   string
}

func (LoginFailedEvent) EventName() string { return LoginFailed }

// LoginSuccessEvent — успешный вход с выпуском пары токенов.
type LoginSuccessEvent struct {
	User   *models.User
	Pair   *models.TokenPair
	Device *models.DeviceInfo
}

func (LoginSuccessEvent) EventName() string { return LoginSuccess }

// TokenCreatedEvent — выпущена пара токенов.
type TokenCreatedEvent struct {
	User   *models.User
	Pair   *models.TokenPair
	Device *models.DeviceInfo
}

func (TokenCreatedEvent) EventName() string { return TokenCreated }

// TokenRefreshedEvent — ротация: по старому refresh-токену выпущена новая пара.
type TokenRefreshedEvent struct {
	User    *models.User
	NewPair *models.TokenPair
	Old     *models.RefreshToken
}

func (TokenRefreshedEvent) EventName() string { return TokenRefreshed }

// TokenRevokedEvent — отозван отдельный refresh-токен.
type TokenRevokedEvent struct {
	Token *models.RefreshToken
}

func (TokenRevokedEvent) EventName() string { return TokenRevoked }

// TokenExpiredEvent — просроченный токен обнаружен очисткой.
type TokenExpiredEvent struct {
	Token *models.RefreshToken
}

func (TokenExpiredEvent) EventName() string { return TokenExpired }

// TokenFamilyRevokedEvent — каскадный отзыв семейства (реакция на повторное
// использование отозванного токена).
type TokenFamilyRevokedEvent struct {
	FamilyID string
	Tokens   []*models.RefreshToken
}

func (TokenFamilyRevokedEvent) EventName() string { return TokenFamilyRevoked }

// SessionCreatedEvent — создана новая сессия (refresh-токен).
type SessionCreatedEvent struct {
	User   *models.User
	Token  *models.RefreshToken
	Device *models.DeviceInfo
}

func (SessionCreatedEvent) EventName() string { return SessionCreated }

// SessionDestroyedEvent — сессия завершена по явному logout.
type SessionDestroyedEvent struct {
	User  *models.User
	Token *models.RefreshToken
}

func (SessionDestroyedEvent) EventName() string { return SessionDestroyed }

// LogoutEvent — финальное событие любого сценария logout.
type LogoutEvent struct {
	User *models.User
}

func (LogoutEvent) EventName() string { return Logout }

// LogoutAllEvent — отозваны все сессии пользователя.
type LogoutAllEvent struct {
	User    *models.User
	Revoked int
}

func (LogoutAllEvent) EventName() string { return LogoutAll }

// LogoutFailsafeEvent — logout без refresh-токена при политике revoke-all.
type LogoutFailsafeEvent struct {
	User *models.User
}

func (LogoutFailsafeEvent) EventName() string { return LogoutFailsafe }

// CleanupCompletedEvent — завершена очистка просроченных токенов.
type CleanupCompletedEvent struct {
	Expired int
}

func (CleanupCompletedEvent) EventName() string { return CleanupCompleted }
