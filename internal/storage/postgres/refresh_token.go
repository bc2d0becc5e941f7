package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"session-service/internal/models"
	"session-service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const refreshTokenColumns = `
    token_hash, user_id, user_type, family_id,
    created_at, expires_at, last_used_at, revoked_at,
    user_agent, ip, device_id
`

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
        INSERT INTO refresh_tokens(token_hash, user_id, user_type, family_id,
                                   created_at, expires_at, last_used_at, revoked_at,
                                   user_agent, ip, device_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `

	var userAgent, ip, deviceID *string
	if token.Device != nil {
		userAgent, ip, deviceID = &token.Device.UserAgent, &token.Device.IP, &token.Device.DeviceID
	}

	_, err := s.db.Exec(ctx, query,
		token.TokenHash,
		token.UserID,
		token.UserType,
		token.FamilyID,
		token.CreatedAt,
		token.ExpiresAt,
		token.LastUsedAt,
		token.RevokedAt,
		userAgent,
		ip,
		deviceID,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит refresh-токен по его хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	token, err := scanRefreshToken(s.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

// RevokeRefreshTokenIfActive пытается отозвать refresh-токен, если он ещё не был отозван.
// Возвращает:
//
//	(true, nil)  — токен был активен и успешно отозван сейчас;
//	(false, nil) — токен существует, но уже был отозван;
//	(false, ErrNotFound) — токен не найден.
func (s *Storage) RevokeRefreshTokenIfActive(ctx context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.RevokeRefreshTokenIfActive"

	const upd = `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
		RETURNING user_id
	`

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, upd, hash, now).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT revoked_at IS NOT NULL
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var revoked bool
	err = s.db.QueryRow(ctx, sel, hash).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// TouchRefreshToken обновляет last_used_at (режим работы без ротации).
func (s *Storage) TouchRefreshToken(ctx context.Context, hash string, now time.Time) error {
	const op = "storage.postgres.TouchRefreshToken"

	query := `
        UPDATE refresh_tokens
        SET last_used_at = $2
        WHERE token_hash = $1
    `

	cmdTag, err := s.db.Exec(ctx, query, hash, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// ActiveRefreshTokensByUser возвращает неотозванные токены владельца,
// старые первыми — порядок важен для вытеснения при лимите сессий.
func (s *Storage) ActiveRefreshTokensByUser(ctx context.Context, userID uuid.UUID, userType string) ([]*models.RefreshToken, error) {
	const op = "storage.postgres.ActiveRefreshTokensByUser"

	query := `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE user_id = $1 AND user_type = $2 AND revoked_at IS NULL
        ORDER BY created_at ASC
    `

	tokens, err := s.queryRefreshTokens(ctx, query, userID, userType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// ActiveRefreshTokensByFamily возвращает неотозванные токены семейства.
func (s *Storage) ActiveRefreshTokensByFamily(ctx context.Context, familyID string) ([]*models.RefreshToken, error) {
	const op = "storage.postgres.ActiveRefreshTokensByFamily"

	query := `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE family_id = $1 AND revoked_at IS NULL
        ORDER BY created_at ASC
    `

	tokens, err := s.queryRefreshTokens(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// ExpiredRefreshTokens возвращает токены с истёкшим сроком действия.
func (s *Storage) ExpiredRefreshTokens(ctx context.Context, now time.Time) ([]*models.RefreshToken, error) {
	const op = "storage.postgres.ExpiredRefreshTokens"

	query := `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE expires_at <= $1
        ORDER BY expires_at ASC
    `

	tokens, err := s.queryRefreshTokens(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokens, nil
}

// DeleteRefreshToken физически удаляет запись токена.
// Единственный путь физического удаления — очистка просроченных записей.
func (s *Storage) DeleteRefreshToken(ctx context.Context, hash string) error {
	const op = "storage.postgres.DeleteRefreshToken"

	query := `
        DELETE FROM refresh_tokens
        WHERE token_hash = $1
    `

	cmdTag, err := s.db.Exec(ctx, query, hash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

func (s *Storage) queryRefreshTokens(ctx context.Context, query string, args ...any) ([]*models.RefreshToken, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.RefreshToken
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}

		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// scanRefreshToken читает строку выборки в модель; NULL-поля устройства
// сворачиваются в nil Device.
func scanRefreshToken(row pgx.Row) (*models.RefreshToken, error) {
	var (
		token                 models.RefreshToken
		userAgent, ip, device *string
	)

	err := row.Scan(
		&token.TokenHash,
		&token.UserID,
		&token.UserType,
		&token.FamilyID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.RevokedAt,
		&userAgent,
		&ip,
		&device,
	)
	if err != nil {
		return nil, err
	}

	if userAgent != nil || ip != nil || device != nil {
		token.Device = &models.DeviceInfo{}
		if userAgent != nil {
			token.Device.UserAgent = *userAgent
		}
		if ip != nil {
			token.Device.IP = *ip
		}
		if device != nil {
			token.Device.DeviceID = *device
		}
	}

	return &token, nil
}
