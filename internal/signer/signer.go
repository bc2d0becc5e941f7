// signer — тонкая обёртка над golang-jwt для выпуска и проверки подписанных
// токенов. Каждый класс токенов (access/refresh) получает собственный
// экземпляр Signer со своим секретом и алгоритмом; сами клеймы, включая
// наличие или отсутствие exp, формирует вызывающая сторона.
package signer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSignature — токен не прошёл проверку подписи либо
	// структурно некорректен.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExpired — подпись корректна, но срок действия токена истёк.
	ErrExpired = errors.New("token expired")

	// ErrUnsupportedAlgorithm — запрошен алгоритм вне списка поддерживаемых.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

	// ErrEmptySecret — пустой секрет подписи.
	ErrEmptySecret = errors.New("empty signing secret")
)

// DefaultAlgorithm используется, если алгоритм в конфигурации не задан.
const DefaultAlgorithm = "HS256"

// leeway — допуск на рассинхронизацию часов при проверке временных клеймов.
const leeway = 5 * time.Second

// Signer выпускает и проверяет токены одного класса.
type Signer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
}

// New создаёт Signer с заданным секретом и алгоритмом (HS256/HS384/HS512).
// Пустой algorithm трактуется как DefaultAlgorithm.
func New(secret, algorithm string) (*Signer, error) {
	const op = "signer.New"

	if secret == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedAlgorithm, algorithm)
	}

	return &Signer{secret: []byte(secret), method: method}, nil
}

// Algorithm возвращает имя алгоритма подписи.
func (s *Signer) Algorithm() string {
	return s.method.Alg()
}

// Issue подписывает переданные клеймы. Если клеймы не содержат exp,
// токен выпускается без срока действия.
func (s *Signer) Issue(claims jwt.Claims) (string, error) {
	const op = "signer.Issue"

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify проверяет подпись и временные клеймы токена, раскладывая payload
// в into. Ошибки сводятся к двум случаям: ErrExpired для истёкшего токена,
// ErrInvalidSignature для всего остального — внешнему вызывающему
// детали различать не положено.
func (s *Signer) Verify(token string, into jwt.Claims) error {
	const op = "signer.Verify"

	parsed, err := jwt.ParseWithClaims(token, into,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != s.method {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
			}

			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithLeeway(leeway),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fmt.Errorf("%s: %w", op, ErrExpired)
		}

		return fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	if !parsed.Valid {
		return fmt.Errorf("%s: %w", op, ErrInvalidSignature)
	}

	return nil
}
