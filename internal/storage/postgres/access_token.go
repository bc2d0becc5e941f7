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

// SaveAccessToken сохраняет новую запись access-токена.
func (s *Storage) SaveAccessToken(ctx context.Context, token *models.AccessToken) error {
	const op = "storage.postgres.SaveAccessToken"

	query := `
        INSERT INTO access_tokens(token_hash, user_id, user_type, payload, created_at, last_accessed_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err := s.db.Exec(ctx, query,
		token.TokenHash,
		token.UserID,
		token.UserType,
		token.Payload,
		token.CreatedAt,
		token.LastAccessedAt,
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

// AccessTokenByHash находит запись access-токена по хэшу.
func (s *Storage) AccessTokenByHash(ctx context.Context, hash string) (*models.AccessToken, error) {
	const op = "storage.postgres.AccessTokenByHash"

	query := `
        SELECT token_hash, user_id, user_type, payload, created_at, last_accessed_at
        FROM access_tokens
        WHERE token_hash = $1
    `

	var token models.AccessToken
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&token.TokenHash,
		&token.UserID,
		&token.UserType,
		&token.Payload,
		&token.CreatedAt,
		&token.LastAccessedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// TouchAccessToken обновляет last_accessed_at.
func (s *Storage) TouchAccessToken(ctx context.Context, hash string, now time.Time) error {
	const op = "storage.postgres.TouchAccessToken"

	query := `
        UPDATE access_tokens
        SET last_accessed_at = $2
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

// DeleteAccessToken удаляет запись токена в границах владельца:
// чужая запись с совпавшим хэшем затронута не будет.
func (s *Storage) DeleteAccessToken(ctx context.Context, hash string, userID uuid.UUID, userType string) error {
	const op = "storage.postgres.DeleteAccessToken"

	query := `
        DELETE FROM access_tokens
        WHERE token_hash = $1 AND user_id = $2 AND user_type = $3
    `

	cmdTag, err := s.db.Exec(ctx, query, hash, userID, userType)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteAccessTokensByUser удаляет все записи access-токенов владельца.
func (s *Storage) DeleteAccessTokensByUser(ctx context.Context, userID uuid.UUID, userType string) error {
	const op = "storage.postgres.DeleteAccessTokensByUser"

	query := `
        DELETE FROM access_tokens
        WHERE user_id = $1 AND user_type = $2
    `

	if _, err := s.db.Exec(ctx, query, userID, userType); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
