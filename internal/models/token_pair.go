package models

import "time"

// TokenPair — пара токенов, выдаваемая при аутентификации или ротации.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, предъявляемый только для выпуска
//     новой пары; на сервере хранится только его хэш;
//   - AccessExpiresAt — момент истечения access-токена (UTC);
//     nil означает, что access-токен выпущен без срока действия.
type TokenPair struct {
	// AccessToken — JWT для авторизации запросов.
	AccessToken string
	// RefreshToken — JWT для обновления пары.
	RefreshToken string
	// AccessExpiresAt — время истечения действия access-токена (UTC), nil — бессрочный.
	AccessExpiresAt *time.Time
}
