package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"session-service/internal/cache"
	"session-service/internal/config"
	"session-service/internal/events"
	"session-service/internal/models"
	"session-service/internal/pkg/log"
	"session-service/internal/signer"
	"session-service/internal/storage"
)

// maxTokenAttempts — число попыток сгенерировать токен с уникальным
// хэшем. Каждая попытка получает новый jti, поэтому повторная коллизия
// хэша практически исключена.
const maxTokenAttempts = 5

// neverExpiryHorizon — горизонт expires_at для бессрочных токенов:
// колонка NOT NULL, поэтому «никогда» кодируется далёкой датой.
const neverExpiryHorizon = 100 * 365 * 24 * time.Hour

// refreshClaims — полезная нагрузка refresh-токена. Семейство едет
// внутри токена, чтобы каскадный отзыв не требовал обращения к БД
// за родословной.
type refreshClaims struct {
	UserID   string `json:"uid"`
	UserType string `json:"utype"`
	FamilyID string `json:"fam"`
	jwt.RegisteredClaims
}

// hashToken возвращает хэш токена в том виде, в котором он хранится:
// sha256 в base64url без набивки. Сырые токены в хранилище не попадают.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// CreateTokenPair выпускает новую пару access/refresh для пользователя.
//
// Пустой familyID начинает новое семейство (login), непустой — продолжает
// существующее (ротация). Перед выпуском применяется лимит одновременных
// сессий: старейшие активные refresh-токены сверх лимита отзываются.
func (s *Service) CreateTokenPair(ctx context.Context, user *models.User, device *models.DeviceInfo, familyID string) (*models.TokenPair, error) {
	const op = "service.token.CreateTokenPair"

	now := time.Now().UTC()

	if familyID == "" {
		familyID = uuid.NewString()
	}

	if err := s.enforceSessionLimit(ctx, user, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	accessToken, accessExpiresAt, err := s.issueAccessToken(ctx, user, nil, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, record, err := s.issueRefreshToken(ctx, user, familyID, device, now)
	if err != nil {
		// Access-токен уже сохранён: без компенсации осталась бы живая
		// запись без парного refresh-токена.
		if delErr := s.tokens.DeleteAccessToken(ctx, hashToken(accessToken), user.ID, user.UserType); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
			log.From(ctx).Warn("failed to delete orphaned access token", "error", delErr)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair := &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: accessExpiresAt,
	}

	s.bus.Publish(ctx, events.TokenCreatedEvent{User: user, Pair: pair, Device: device})
	s.bus.Publish(ctx, events.SessionCreatedEvent{User: user, Token: record, Device: device})

	return pair, nil
}

// enforceSessionLimit отзывает старейшие активные refresh-токены так,
// чтобы после выпуска нового их было не больше MaxSessionsPerUser.
func (s *Service) enforceSessionLimit(ctx context.Context, user *models.User, now time.Time) error {
	active, err := s.tokens.ActiveRefreshTokensByUser(ctx, user.ID, user.UserType)
	if err != nil {
		return err
	}

	overshoot := len(active) - s.cfg.MaxSessionsPerUser + 1
	if overshoot <= 0 {
		return nil
	}

	// active отсортирован по возрастанию created_at: первые — старейшие.
	for _, token := range active[:overshoot] {
		if err := s.revokeToken(ctx, token, now); err != nil {
			return err
		}
	}

	return nil
}

// revokeToken атомарно отзывает один токен и помечает его в кэше.
// Проигранная гонка (токен уже отозван) не считается ошибкой.
func (s *Service) revokeToken(ctx context.Context, token *models.RefreshToken, now time.Time) error {
	claimed, err := s.tokens.RevokeRefreshTokenIfActive(ctx, token.TokenHash, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	if claimed {
		s.markRevokedInCache(ctx, token.TokenHash)
		s.bus.Publish(ctx, events.TokenRevokedEvent{Token: token})
	}

	return nil
}

// issueAccessToken подписывает access-токен и сохраняет его запись.
// Вторым значением возвращается срок действия; nil — токен бессрочный.
// При непустом payload стандартные клеймы владельца заменяются им целиком.
// iat имеет секундную гранулярность, поэтому уникальность подписанной
// строки обеспечивает свежий jti на каждую попытку: без него две выдачи
// одному пользователю в одну секунду дали бы одинаковый token_hash.
func (s *Service) issueAccessToken(ctx context.Context, user *models.User, payload map[string]any, now time.Time) (string, *time.Time, error) {
	var expiresAt *time.Time
	if !s.accessTTL.IsNever() {
		exp := now.Add(s.accessTTL.Duration())
		expiresAt = &exp
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		claims := jwt.MapClaims{}
		for k, v := range payload {
			claims[k] = v
		}
		if len(payload) == 0 {
			claims["uid"] = user.ID.String()
			claims["utype"] = user.UserType
		}
		claims["jti"] = uuid.NewString()
		claims["iat"] = now.Unix()
		if expiresAt != nil {
			claims["exp"] = expiresAt.Unix()
		}

		token, err := s.access.Issue(claims)
		if err != nil {
			return "", nil, err
		}

		record := &models.AccessToken{
			TokenHash:      hashToken(token),
			UserID:         user.ID,
			UserType:       user.UserType,
			Payload:        map[string]any(claims),
			CreatedAt:      now,
			LastAccessedAt: now,
		}

		err = s.tokens.SaveAccessToken(ctx, record)
		if err == nil {
			return token, expiresAt, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return "", nil, err
		}
	}

	return "", nil, ErrAccessTokenCollision
}

// issueRefreshToken подписывает refresh-токен и сохраняет его запись.
// Уникальность токена обеспечивается свежим jti на каждую попытку.
func (s *Service) issueRefreshToken(ctx context.Context, user *models.User, familyID string, device *models.DeviceInfo, now time.Time) (string, *models.RefreshToken, error) {
	expiresAt := now.Add(neverExpiryHorizon)
	if !s.refreshTTL.IsNever() {
		expiresAt = now.Add(s.refreshTTL.Duration())
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		claims := refreshClaims{
			UserID:   user.ID.String(),
			UserType: user.UserType,
			FamilyID: familyID,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:       uuid.NewString(),
				IssuedAt: jwt.NewNumericDate(now),
			},
		}
		if !s.refreshTTL.IsNever() {
			claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
		}

		token, err := s.refresh.Issue(claims)
		if err != nil {
			return "", nil, err
		}

		record := &models.RefreshToken{
			TokenHash: hashToken(token),
			UserID:    user.ID,
			UserType:  user.UserType,
			FamilyID:  familyID,
			CreatedAt: now,
			ExpiresAt: expiresAt,
			Device:    device,
		}

		err = s.tokens.SaveRefreshToken(ctx, record)
		if err == nil {
			s.cacheRefreshToken(ctx, record)
			return token, record, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return "", nil, err
		}
	}

	return "", nil, ErrRefreshTokenCollision
}

// RefreshTokens ротирует refresh-токен: валидирует предъявленный токен,
// атомарно отзывает его и выпускает новую пару в том же семействе.
//
// Повторное предъявление уже отозванного токена трактуется как
// компрометация: отзывается всё семейство, вызывающему возвращается
// ErrTokenRevoked. Просроченный, но не отозванный токен — обычный отказ
// без каскада.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string, device *models.DeviceInfo) (*models.TokenPair, error) {
	const op = "service.token.RefreshTokens"

	logger := log.From(ctx)
	now := time.Now().UTC()

	token, err := s.validateRefreshToken(ctx, refreshToken, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	repo, err := s.users.Lookup(token.UserType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := repo.UserByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cfg.Rotation {
		claimed, err := s.tokens.RevokeRefreshTokenIfActive(ctx, token.TokenHash, now)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !claimed {
			// Гонка проиграна: токен отозвали между валидацией и захватом.
			// Конкурентная ротация того же токена — тот же сигнал
			// компрометации, что и повторное предъявление.
			logger.Warn("refresh token lost rotation race, revoking family",
				"family_id", token.FamilyID)

			if err := s.RevokeTokenFamily(ctx, token.FamilyID); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}

			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}

		s.markRevokedInCache(ctx, token.TokenHash)
	} else {
		if err := s.tokens.TouchRefreshToken(ctx, token.TokenHash, now); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	pair, err := s.CreateTokenPair(ctx, user, device, token.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.bus.Publish(ctx, events.TokenRefreshedEvent{User: user, NewPair: pair, Old: token})

	return pair, nil
}

// validateRefreshToken проверяет подпись и состояние предъявленного
// refresh-токена и возвращает его запись из хранилища.
func (s *Service) validateRefreshToken(ctx context.Context, refreshToken string, now time.Time) (*models.RefreshToken, error) {
	logger := log.From(ctx)

	var claims refreshClaims
	if err := s.refresh.Verify(refreshToken, &claims); err != nil {
		if errors.Is(err, signer.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	tokenHash := hashToken(refreshToken)

	// Быстрый отказ по кэшу: отозванный в кэше токен не требует похода
	// в хранилище. Положительный ответ кэша правом на ротацию не является.
	if s.rcache != nil {
		if entry, ok, err := s.rcache.Get(ctx, tokenHash); err == nil && ok && entry.Revoked {
			logger.Warn("revoked refresh token reused (cache), revoking family",
				"family_id", entry.FamilyID)

			if err := s.RevokeTokenFamily(ctx, entry.FamilyID); err != nil {
				return nil, err
			}

			return nil, ErrTokenRevoked
		}
	}

	token, err := s.tokens.RefreshTokenByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if token.IsRevoked() {
		// Повторное использование отозванного токена: всё семейство
		// считается скомпрометированным.
		logger.Warn("revoked refresh token reused, revoking family",
			"family_id", token.FamilyID)

		if err := s.RevokeTokenFamily(ctx, token.FamilyID); err != nil {
			return nil, err
		}

		return nil, ErrTokenRevoked
	}

	if token.IsExpired(now) {
		return nil, ErrTokenExpired
	}

	return token, nil
}

// RevokeTokenFamily отзывает все активные refresh-токены семейства.
// Операция идемпотентна: уже отозванные токены пропускаются молча.
func (s *Service) RevokeTokenFamily(ctx context.Context, familyID string) error {
	const op = "service.token.RevokeTokenFamily"

	now := time.Now().UTC()

	active, err := s.tokens.ActiveRefreshTokensByFamily(ctx, familyID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, token := range active {
		if err := s.revokeToken(ctx, token, now); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.bus.Publish(ctx, events.TokenFamilyRevokedEvent{FamilyID: familyID, Tokens: active})

	return nil
}

// RevokeAllTokens отзывает все активные refresh-токены пользователя и
// удаляет его access-токены. Используется при logout со всех устройств и
// как failsafe-политика logout без refresh-токена.
func (s *Service) RevokeAllTokens(ctx context.Context, user *models.User) error {
	const op = "service.token.RevokeAllTokens"

	now := time.Now().UTC()

	active, err := s.tokens.ActiveRefreshTokensByUser(ctx, user.ID, user.UserType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, token := range active {
		if err := s.revokeToken(ctx, token, now); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.tokens.DeleteAccessTokensByUser(ctx, user.ID, user.UserType); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.bus.Publish(ctx, events.LogoutAllEvent{User: user, Revoked: len(active)})

	return nil
}

// Logout завершает сессию пользователя. Поведение без refresh-токена
// определяется политикой LogoutWithoutToken: revoke-all отзывает все
// сессии пользователя, error возвращает ErrRefreshTokenRequired.
func (s *Service) Logout(ctx context.Context, user *models.User, accessToken, refreshToken string) error {
	const op = "service.token.Logout"

	now := time.Now().UTC()

	if accessToken != "" {
		err := s.tokens.DeleteAccessToken(ctx, hashToken(accessToken), user.ID, user.UserType)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	switch {
	case refreshToken != "":
		token, err := s.tokens.RefreshTokenByHash(ctx, hashToken(refreshToken))
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, err)
			}
			// Неизвестный токен при logout не повод для ошибки:
			// сессии уже нет, цель достигнута.
		} else if token.UserID == user.ID && token.UserType == user.UserType {
			if err := s.revokeToken(ctx, token, now); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			s.bus.Publish(ctx, events.SessionDestroyedEvent{User: user, Token: token})
		}

	case s.cfg.LogoutWithoutToken == config.LogoutError:
		return fmt.Errorf("%s: %w", op, ErrRefreshTokenRequired)

	default:
		if err := s.RevokeAllTokens(ctx, user); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.bus.Publish(ctx, events.LogoutFailsafeEvent{User: user})
	}

	s.bus.Publish(ctx, events.LogoutEvent{User: user})

	return nil
}

// ActiveSessions возвращает живые (не отозванные и не просроченные)
// сессии пользователя, новейшие первыми.
func (s *Service) ActiveSessions(ctx context.Context, user *models.User) ([]*models.RefreshToken, error) {
	const op = "service.token.ActiveSessions"

	now := time.Now().UTC()

	active, err := s.tokens.ActiveRefreshTokensByUser(ctx, user.ID, user.UserType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sessions := make([]*models.RefreshToken, 0, len(active))
	for i := len(active) - 1; i >= 0; i-- {
		if active[i].IsValid(now) {
			sessions = append(sessions, active[i])
		}
	}

	return sessions, nil
}

// ValidateAccessToken проверяет подпись и наличие access-токена и
// возвращает владельца. Владельцем считается запись хранилища, а не
// клеймы токена. Время последнего обращения обновляется по факту
// использования; сбой обновления аутентификацию не ломает.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (uuid.UUID, string, error) {
	const op = "service.token.ValidateAccessToken"

	logger := log.From(ctx)
	now := time.Now().UTC()

	if err := s.access.Verify(accessToken, jwt.MapClaims{}); err != nil {
		if errors.Is(err, signer.ErrExpired) {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	record, err := s.tokens.AccessTokenByHash(ctx, hashToken(accessToken))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.TouchAccessToken(ctx, record.TokenHash, now); err != nil {
		logger.Warn("failed to touch access token", "error", err)
	}

	return record.UserID, record.UserType, nil
}

// CleanupExpiredTokens удаляет просроченные refresh-токены, включая уже
// отозванные, и возвращает число удалённых. Сбой удаления отдельной
// записи логируется и не прерывает проход.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int, error) {
	const op = "service.token.CleanupExpiredTokens"

	logger := log.From(ctx)
	now := time.Now().UTC()

	expired, err := s.tokens.ExpiredRefreshTokens(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	removed := 0
	for _, token := range expired {
		s.bus.Publish(ctx, events.TokenExpiredEvent{Token: token})

		if err := s.tokens.DeleteRefreshToken(ctx, token.TokenHash); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("failed to delete expired refresh token", "error", err)
			}
			continue
		}
		removed++
	}

	s.bus.Publish(ctx, events.CleanupCompletedEvent{Expired: removed})

	return removed, nil
}

// cacheRefreshToken кладёт запись в кэш best-effort.
func (s *Service) cacheRefreshToken(ctx context.Context, token *models.RefreshToken) {
	if s.rcache == nil {
		return
	}

	entry := &cache.RefreshEntry{
		UserID:    token.UserID,
		UserType:  token.UserType,
		FamilyID:  token.FamilyID,
		ExpiresAt: token.ExpiresAt,
	}
	if err := s.rcache.Set(ctx, token.TokenHash, entry, time.Until(token.ExpiresAt)); err != nil {
		log.From(ctx).Warn("failed to cache refresh token", "error", err)
	}
}

// markRevokedInCache помечает токен отозванным в кэше best-effort.
func (s *Service) markRevokedInCache(ctx context.Context, tokenHash string) {
	if s.rcache == nil {
		return
	}

	if err := s.rcache.MarkRevoked(ctx, tokenHash); err != nil {
		log.From(ctx).Warn("failed to mark refresh token revoked in cache", "error", err)
	}
}
