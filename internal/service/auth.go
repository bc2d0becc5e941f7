package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"session-service/internal/events"
	"session-service/internal/models"
	"session-service/internal/storage"
)

// Ограничения на пароль. Верхняя граница продиктована bcrypt: байты
// дальше 72-го не участвуют в хэше.
const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

// LoginResult — результат успешной аутентификации. При выключенном
// refresh-контуре выпускается только access-токен, Tokens остаётся nil.
type LoginResult struct {
	User        *models.User
	Tokens      *models.TokenPair
	AccessToken string
	ExpiresAt   *time.Time
}

// RegisterUser создаёт пользователя заданного типа и сразу выпускает ему
// пару токенов. E-mail нормализуется и проверяется на уникальность в
// рамках типа.
func (s *Service) RegisterUser(ctx context.Context, userType, email, password string, device *models.DeviceInfo) (*LoginResult, error) {
	const op = "service.auth.RegisterUser"

	repo, err := s.users.Lookup(userType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	passwordHash, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		UserType:     userType,
		Email:        normalized,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := repo.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.issueLoginTokens(ctx, user, device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// AttemptLogin находит пользователя по произвольным полям учётных данных
// и проверяет пароль. Публикует события попытки/провала; наружу любой
// провал выглядит как ErrInvalidCredentials.
func (s *Service) AttemptLogin(ctx context.Context, userType string, credentials map[string]string) (*models.User, error) {
	const op = "service.auth.AttemptLogin"

	repo, err := s.users.Lookup(userType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	password := credentials["password"]
	fields := make(map[string]string, len(credentials))
	for k, v := range credentials {
		if k == "password" {
			continue
		}
		fields[k] = v
	}

	s.bus.Publish(ctx, events.LoginAttemptEvent{UserType: userType, Fields: fields})

	user, err := repo.FirstByFields(ctx, fields)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.bus.Publish(ctx, events.LoginFailedEvent{
				UserType: userType,
				Fields:   fields,
				Reason:   "user not found",
			})
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		s.bus.Publish(ctx, events.LoginFailedEvent{
			UserType: userType,
			Fields:   fields,
			Reason:   "invalid password",
		})
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return user, nil
}

// Login аутентифицирует пользователя и выпускает токены: пару
// access/refresh при включённом refresh-контуре, иначе только access.
func (s *Service) Login(ctx context.Context, userType string, credentials map[string]string, device *models.DeviceInfo) (*LoginResult, error) {
	const op = "service.auth.Login"

	user, err := s.AttemptLogin(ctx, userType, credentials)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := s.issueLoginTokens(ctx, user, device)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return result, nil
}

// issueLoginTokens выпускает токены для нового логина и публикует
// событие успеха.
func (s *Service) issueLoginTokens(ctx context.Context, user *models.User, device *models.DeviceInfo) (*LoginResult, error) {
	result := &LoginResult{User: user}

	if s.cfg.RefreshEnabled {
		pair, err := s.CreateTokenPair(ctx, user, device, "")
		if err != nil {
			return nil, err
		}
		result.Tokens = pair
		result.AccessToken = pair.AccessToken
		result.ExpiresAt = pair.AccessExpiresAt
	} else {
		token, expiresAt, err := s.issueAccessToken(ctx, user, nil, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		result.AccessToken = token
		result.ExpiresAt = expiresAt
	}

	s.bus.Publish(ctx, events.LoginSuccessEvent{User: user, Pair: result.Tokens, Device: device})

	return result, nil
}

// hashPassword хэширует пароль bcrypt с настроенной стоимостью.
func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// checkPassword сверяет пароль с bcrypt-хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// normalizeEmail приводит e-mail к нижнему регистру и проверяет формат.
func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", ErrInvalidEmail
	}

	return normalized, nil
}

func validatePassword(password string) error {
	switch {
	case password == "":
		return ErrEmptyPassword
	case len(password) < minPasswordLen:
		return ErrWeakPassword
	case len(password) > maxPasswordLen:
		return ErrWeakPassword
	}

	return nil
}
