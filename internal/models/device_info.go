package models

// DeviceInfo — метаданные устройства/клиента, привязанные к сессии.
// Используются исключительно для аудита и отображения активных сессий,
// никогда — для решений об авторизации.
type DeviceInfo struct {
	UserAgent string
	IP        string
	DeviceID  string
}
