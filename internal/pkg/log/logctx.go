// Package log протаскивает *slog.Logger через context.Context.
//
// Обработчики сессионных операций и фоновая очистка кладут в контекст
// логгер с атрибутами запроса (user_id, user_type), а нижние слои
// достают его через From, не принимая логгер отдельным аргументом.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Into возвращает контекст с вложенным логгером.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста. Если логгер не положен или лежит
// некорректное значение, возвращается slog.Default().
func From(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok || l == nil {
		return slog.Default()
	}

	return l
}
