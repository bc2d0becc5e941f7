package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"session-service/internal/storage"
	"session-service/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type Storage struct {
	db *pgxpool.Pool
}

// New создает новое подключение к PostgreSQL.
func New(ctx context.Context, dbURL string) (*Storage, error) {
	const op = "storage.postgres.New"

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

// RunMigrations накатывает встроенные goose-миграции.
// Для goose открывается отдельное database/sql-подключение поверх pgx stdlib;
// основной пул остаётся нетронутым.
func RunMigrations(ctx context.Context, dbURL string) error {
	const op = "storage.postgres.RunMigrations"

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.db.Close()
}

// Users возвращает репозиторий пользователей заданного типа поверх того же пула.
func (s *Storage) Users(userType string) storage.UserRepository {
	return &userRepo{db: s.db, userType: userType}
}

// Проверка на соответствие интерфейсу TokenStorage.
var _ storage.TokenStorage = (*Storage)(nil)
