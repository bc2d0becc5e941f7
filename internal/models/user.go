package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
//
// Идентичность пользователя двухкомпонентная: (ID, UserType).
// ID сам по себе не уникален глобально — разные типы пользователей
// (например, "admin" и "customer") живут в разных репозиториях.
type User struct {
	ID           uuid.UUID
	UserType     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
