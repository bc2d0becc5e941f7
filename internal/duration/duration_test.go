package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const defaultMs = int64(3_600_000) // 1 час

func TestResolve_Fields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields Fields
		want   int64
	}{
		{"hours_1", Fields{Hours: 1}, 3_600_000},
		{"days_1", Fields{Days: 1}, 86_400_000},
		{"additive_days_hours", Fields{Days: 7, Hours: 12}, 648_000_000},
		{"weeks_plus_ms", Fields{Weeks: 1, Milliseconds: 500}, 604_800_500},
		{"minutes_seconds", Fields{Minutes: 30, Seconds: 15}, 1_815_000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.fields, defaultMs)
			require.False(t, got.IsNever())
			require.Equal(t, tc.want, got.Ms())
		})
	}
}

func TestResolve_EmptyFields_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	got := Resolve(Fields{}, defaultMs)
	require.Equal(t, defaultMs, got.Ms())
}

func TestParse_Strings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec string
		want int64
	}{
		{"one_hour", "1h", 3_600_000},
		{"seven_days", "7d", 604_800_000},
		{"combined", "1d 2h 30m", 95_400_000},
		{"seconds", "90s", 90_000},
		{"week", "1w", 604_800_000},
		{"fractional", "1.5h", 5_400_000},
		{"raw_milliseconds", "3600000", 3_600_000},
		{"unknown_tokens_skipped", "1h 5x", 3_600_000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.spec, defaultMs)
			require.False(t, got.IsNever())
			require.Equal(t, tc.want, got.Ms())
		})
	}
}

func TestParse_EmptyAndUnparseable_FallBackToDefault(t *testing.T) {
	t.Parallel()

	// Пустая строка — спецификация не задана.
	require.Equal(t, defaultMs, Parse("", defaultMs).Ms())

	// Ни один токен не распознан — молчаливый откат к default, не ошибка.
	require.Equal(t, defaultMs, Parse("garbage", defaultMs).Ms())
	require.Equal(t, defaultMs, Parse("xx yy zz", defaultMs).Ms())
}

func TestParse_NeverSentinel(t *testing.T) {
	t.Parallel()

	got := Parse("never", defaultMs)
	require.True(t, got.IsNever())

	// Регистр не важен.
	require.True(t, Parse("NEVER", defaultMs).IsNever())
}

func TestJWTSeconds(t *testing.T) {
	t.Parallel()

	s, ok := Milliseconds(3_600_000).JWTSeconds()
	require.True(t, ok)
	require.Equal(t, "3600s", s)

	s, ok = Milliseconds(900_000).JWTSeconds()
	require.True(t, ok)
	require.Equal(t, "900s", s)

	// Для Never клейм должен быть опущен целиком.
	s, ok = Never().JWTSeconds()
	require.False(t, ok)
	require.Empty(t, s)
}

func TestDuration(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Hour, Milliseconds(3_600_000).Duration())
	require.Equal(t, time.Duration(0), Never().Duration())
}
