// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Политики logout без refresh-токена.
const (
	// LogoutRevokeAll — fail-safe: неоднозначный logout уничтожает все
	// сессии пользователя, чтобы не оставлять осиротевших.
	LogoutRevokeAll = "revoke-all"
	// LogoutError — строгий режим: без refresh-токена logout завершается
	// ошибкой, вызывающий обязан быть точным.
	LogoutError = "error"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Cleanup  CleanupConfig `yaml:"cleanup"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// HTTPConfig — сетевые настройки служебного HTTP-сервера (health/metrics).
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"50081"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска, ротации и отзыва токенов.
//
// Сроки действия (AccessTokenTTL/RefreshTokenTTL) — гибкие спецификации:
// строка токенов "1d 2h 30m", сырые миллисекунды ("3600000") или сентинел
// "never"; разбор выполняется один раз при конструировании сервиса.
type AuthConfig struct {
	// JWTSecret — секрет подписи access-токенов.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	// JWTAlgorithm — алгоритм подписи (HS256/HS384/HS512).
	JWTAlgorithm string `yaml:"jwt_algorithm" env:"JWT_ALGORITHM" env-default:"HS256"`
	// AccessTokenTTL — срок действия access-токена.
	AccessTokenTTL string `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"1h"`

	// RefreshSecret — отдельный секрет для refresh-токенов;
	// пустое значение означает откат к JWTSecret.
	RefreshSecret string `yaml:"refresh_secret" env:"REFRESH_SECRET"`
	// RefreshTokenTTL — срок действия refresh-токена.
	RefreshTokenTTL string `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"7d"`
	// RefreshEnabled — выпускать ли refresh-токены вообще.
	RefreshEnabled bool `yaml:"refresh_enabled" env:"REFRESH_ENABLED" env-default:"true"`
	// Rotation — ротировать ли refresh-токен при каждом использовании.
	Rotation bool `yaml:"rotation" env:"ROTATION" env-default:"true"`
	// MaxSessionsPerUser — максимум активных refresh-токенов на пользователя.
	MaxSessionsPerUser int `yaml:"max_sessions_per_user" env:"MAX_SESSIONS_PER_USER" env-default:"5"`
	// LogoutWithoutToken — политика logout без refresh-токена.
	LogoutWithoutToken string `yaml:"logout_without_token" env:"LOGOUT_WITHOUT_TOKEN" env-default:"revoke-all"`

	// BcryptCost — стоимость хэширования паролей.
	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`

	// UserTypes — типы пользователей, для которых при старте регистрируются
	// репозитории.
	UserTypes []string `yaml:"user_types" env:"USER_TYPES" env-default:"user"`
}

// RefreshSecretOrFallback возвращает секрет refresh-токенов с откатом
// к основному секрету.
func (a AuthConfig) RefreshSecretOrFallback() string {
	if a.RefreshSecret != "" {
		return a.RefreshSecret
	}

	return a.JWTSecret
}

// Validate проверяет согласованность параметров.
func (a AuthConfig) Validate() error {
	if a.LogoutWithoutToken != LogoutRevokeAll && a.LogoutWithoutToken != LogoutError {
		return fmt.Errorf("unknown logout_without_token policy: %q", a.LogoutWithoutToken)
	}

	if a.MaxSessionsPerUser < 1 {
		return fmt.Errorf("max_sessions_per_user must be positive, got %d", a.MaxSessionsPerUser)
	}

	return nil
}

// DBConfig — настройки подключения к базе данных.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — настройки кэша refresh-токенов; пустой URL отключает кэш.
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

// CleanupConfig — параметры фоновой очистки просроченных токенов.
type CleanupConfig struct {
	Interval time.Duration `yaml:"interval" env:"CLEANUP_INTERVAL" env-default:"30m"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	finish := func(c *Config, err error) (*Config, error) {
		if err != nil {
			return nil, err
		}

		if err := c.Auth.Validate(); err != nil {
			return nil, fmt.Errorf("invalid auth config: %w", err)
		}

		return c, nil
	}

	// 1) Явный путь.
	if path != "" {
		return finish(tryRead(path))
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return finish(tryRead(envPath))
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return finish(tryRead("local.yaml"))
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return finish(&cfg, nil)
}
