package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — данные refresh-токена для управления сессиями.
//
// В хранилище лежит только хэш подписанного токена (sha256 → base64url),
// сам токен никогда не сохраняется. FamilyID связывает цепочку токенов,
// выпущенных ротациями одного исходного логина, и используется для
// каскадного отзыва при обнаружении повторного использования.
type RefreshToken struct {
	TokenHash  string
	UserID     uuid.UUID
	UserType   string
	FamilyID   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
	Device     *DeviceInfo
}

// IsRevoked — токен был отозван (ротация/logout/компрометация).
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired — срок действия токена истёк к моменту now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsValid — токен не отозван и не просрочен.
func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}
