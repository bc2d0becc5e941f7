// duration реализует разбор гибких спецификаций времени жизни токенов
// в каноническое значение: миллисекунды либо «без срока действия».
//
// Поддерживаемые формы:
//   - структурная (Fields): аддитивные поля от миллисекунд до недель;
//   - строковая: токены вида "<число><единица>" через пробелы ("1d 2h 30m"),
//     единицы s/m/h/d/w, дробные значения допустимы, нераспознанные токены
//     молча пропускаются;
//   - «сырые» миллисекунды: строка из одних цифр;
//   - сентинел "never" — токен без срока действия.
//
// Спецификация разбирается один раз при старте сервиса; дальше по коду
// ходит уже готовое значение Expiry.
package duration

import (
	"strconv"
	"strings"
	"time"
)

// NeverSentinel — строковый сентинел «токен не истекает» в конфигурации.
const NeverSentinel = "never"

// Expiry — разрешённое значение срока действия: либо конкретные
// миллисекунды, либо «без срока».
type Expiry struct {
	ms    int64
	never bool
}

// Never — срок действия «никогда не истекает».
func Never() Expiry {
	return Expiry{never: true}
}

// Milliseconds — срок действия в миллисекундах.
func Milliseconds(ms int64) Expiry {
	return Expiry{ms: ms}
}

// IsNever сообщает, что срок действия отсутствует.
func (e Expiry) IsNever() bool { return e.never }

// Ms возвращает срок в миллисекундах; для IsNever() значение не определено (0).
func (e Expiry) Ms() int64 { return e.ms }

// Duration возвращает срок как time.Duration; для IsNever() — 0.
func (e Expiry) Duration() time.Duration {
	return time.Duration(e.ms) * time.Millisecond
}

// JWTSeconds конвертирует срок в представление, ожидаемое подписчиком
// токена: строку с суффиксом секунд ("900s"). Для IsNever() возвращает
// ("", false) — exp-клейм должен быть опущен целиком.
func (e Expiry) JWTSeconds() (string, bool) {
	if e.never {
		return "", false
	}

	return strconv.FormatInt(e.ms/1000, 10) + "s", true
}

// Fields — структурная спецификация срока. Все поля аддитивны:
// {Days: 1, Hours: 6} означает 30 часов.
type Fields struct {
	Milliseconds int64
	Seconds      int64
	Minutes      int64
	Hours        int64
	Days         int64
	Weeks        int64
}

// Ms возвращает сумму всех полей в миллисекундах.
func (f Fields) Ms() int64 {
	ms := f.Milliseconds
	ms += f.Seconds * 1000
	ms += f.Minutes * 60 * 1000
	ms += f.Hours * 60 * 60 * 1000
	ms += f.Days * 24 * 60 * 60 * 1000
	ms += f.Weeks * 7 * 24 * 60 * 60 * 1000

	return ms
}

// Resolve разрешает структурную спецификацию. Нулевая сумма трактуется как
// «спецификация не задана» и откатывается к defaultMs.
func Resolve(f Fields, defaultMs int64) Expiry {
	ms := f.Ms()
	if ms == 0 {
		return Milliseconds(defaultMs)
	}

	return Milliseconds(ms)
}

// Parse разрешает строковую спецификацию:
//   - ""           -> defaultMs;
//   - "never"      -> Never;
//   - "3600000"    -> сырые миллисекунды;
//   - "1d 2h 30m"  -> сумма распознанных токенов; если не распознан ни один,
//     результат — defaultMs (откат, не ошибка).
func Parse(spec string, defaultMs int64) Expiry {
	spec = strings.TrimSpace(spec)

	if spec == "" {
		return Milliseconds(defaultMs)
	}

	if strings.EqualFold(spec, NeverSentinel) {
		return Never()
	}

	if raw, err := strconv.ParseInt(spec, 10, 64); err == nil {
		return Milliseconds(raw)
	}

	total := parseTokens(spec)
	if total == 0 {
		return Milliseconds(defaultMs)
	}

	return Milliseconds(total)
}

// parseTokens суммирует токены "<число><единица>"; возвращает 0,
// если ни один токен не распознан.
func parseTokens(spec string) int64 {
	var total float64

	for _, part := range strings.Fields(spec) {
		if len(part) < 2 {
			continue
		}

		unit := part[len(part)-1]
		value, err := strconv.ParseFloat(part[:len(part)-1], 64)
		if err != nil || value < 0 {
			continue
		}

		switch unit {
		case 's', 'S':
			total += value * 1000
		case 'm', 'M':
			total += value * 60 * 1000
		case 'h', 'H':
			total += value * 60 * 60 * 1000
		case 'd', 'D':
			total += value * 24 * 60 * 60 * 1000
		case 'w', 'W':
			total += value * 7 * 24 * 60 * 60 * 1000
		}
	}

	return int64(total)
}
