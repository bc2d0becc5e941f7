// Package redact маскирует учётные данные перед попаданием в аудит-лог.
// Подписчики аудита на шине событий пишут почту из неудачных логинов
// только через Email; сырые токены и пароли в лог не попадают никогда.
package redact

import "strings"

// Email оставляет от локальной части не больше двух первых символов,
// домен сохраняется как есть. Строка без единственного '@' маскируется
// целиком.
func Email(s string) string {
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}

	runes := []rune(local)
	if len(runes) > 2 {
		return string(runes[:2]) + "***@" + domain
	}

	return "***@" + domain
}

// Token и Password — плейсхолдеры для полей, которые маскируются целиком.
func Token() string    { return "[REDACTED_TOKEN]" }
func Password() string { return "[REDACTED_PASSWORD]" }
