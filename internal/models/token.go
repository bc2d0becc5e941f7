package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessToken — запись о выпущенном access-токене.
//
// Хранится по хэшу подписанной строки. Payload — произвольные клеймы
// владельца на момент выпуска; единственное изменяемое поле — LastAccessedAt.
type AccessToken struct {
	TokenHash      string
	UserID         uuid.UUID
	UserType       string
	Payload        map[string]any
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
