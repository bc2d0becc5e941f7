package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"session-service/internal/models"
	"session-service/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userRepo — репозиторий пользователей одного типа поверх общего пула.
type userRepo struct {
	db       *pgxpool.Pool
	userType string
}

var _ storage.UserRepository = (*userRepo)(nil)

// credentialColumns — разрешённые поля поиска учётных данных.
// Белый список защищает от подстановки произвольных колонок в запрос.
var credentialColumns = map[string]string{
	"email": "email",
	"id":    "id",
}

// SaveUser создает нового пользователя в БД.
func (r *userRepo) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
        INSERT INTO users(id, user_type, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err := r.db.Exec(ctx, query,
		user.ID,
		r.userType,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
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

// UserByID находит пользователя по ID в границах своего типа.
func (r *userRepo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `
        SELECT id, user_type, email, password_hash, created_at, updated_at
        FROM users
        WHERE id = $1 AND user_type = $2
    `

	user, err := r.scanUser(r.db.QueryRow(ctx, query, id, r.userType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// FirstByFields находит первого пользователя по набору полей.
// Поля вне белого списка -> ErrNotFound: искать по неизвестной колонке нельзя.
func (r *userRepo) FirstByFields(ctx context.Context, fields map[string]string) (*models.User, error) {
	const op = "storage.postgres.FirstByFields"

	if len(fields) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	// Детерминированный порядок условий.
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	conds := []string{"user_type = $1"}
	args := []any{r.userType}

	for _, name := range names {
		column, ok := credentialColumns[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		args = append(args, fields[name])
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	query := `
        SELECT id, user_type, email, password_hash, created_at, updated_at
        FROM users
        WHERE ` + strings.Join(conds, " AND ") + `
        ORDER BY created_at ASC
        LIMIT 1
    `

	user, err := r.scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (r *userRepo) scanUser(row pgx.Row) (*models.User, error) {
	var (
		user      models.User
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&user.ID,
		&user.UserType,
		&user.Email,
		&user.PasswordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()

	return &user, nil
}
