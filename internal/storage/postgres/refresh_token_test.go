package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"session-service/internal/models"
	"session-service/internal/storage"
)

func seedRefreshToken(t *testing.T, st *Storage, user *models.User, plain string, ttl time.Duration) *models.RefreshToken {
	t.Helper()

	now := time.Now().UTC()
	rt := &models.RefreshToken{
		TokenHash: hashOf(plain),
		UserID:    user.ID,
		UserType:  user.UserType,
		FamilyID:  uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	require.NoError(t, st.SaveRefreshToken(context.Background(), rt))
	return rt
}

func TestIntegration_SaveRefreshToken_And_ByHash_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")

	now := time.Now().UTC()
	rt := &models.RefreshToken{
		TokenHash: hashOf("plain-refresh-1"),
		UserID:    user.ID,
		UserType:  user.UserType,
		FamilyID:  uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		Device:    &models.DeviceInfo{UserAgent: "test-agent", IP: "10.0.0.1", DeviceID: "dev-1"},
	}
	require.NoError(t, st.SaveRefreshToken(ctx, rt))

	got, err := st.RefreshTokenByHash(ctx, rt.TokenHash)
	require.NoError(t, err)
	require.Equal(t, rt.TokenHash, got.TokenHash)
	require.Equal(t, user.ID, got.UserID)
	require.Equal(t, user.UserType, got.UserType)
	require.Equal(t, rt.FamilyID, got.FamilyID)
	require.Nil(t, got.RevokedAt)
	require.NotNil(t, got.Device)
	require.Equal(t, "test-agent", got.Device.UserAgent)
	require.WithinDuration(t, now, got.CreatedAt, 2*time.Second)
	require.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, 2*time.Second)
}

func TestIntegration_SaveRefreshToken_UniqueViolation(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")

	rt := seedRefreshToken(t, st, user, "dup-refresh", 10*time.Minute)

	dup := *rt
	dup.ExpiresAt = rt.ExpiresAt.Add(10 * time.Minute)
	err := st.SaveRefreshToken(ctx, &dup)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_RefreshTokenByHash_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.RefreshTokenByHash(context.Background(), hashOf("missing"))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_RevokeRefreshTokenIfActive_ExactlyOneWinner(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")
	rt := seedRefreshToken(t, st, user, "race-refresh", time.Hour)

	now := time.Now().UTC()

	claimed, err := st.RevokeRefreshTokenIfActive(ctx, rt.TokenHash, now)
	require.NoError(t, err)
	require.True(t, claimed)

	// Повторный захват проигрывает, но ошибкой не является.
	claimed, err = st.RevokeRefreshTokenIfActive(ctx, rt.TokenHash, now)
	require.NoError(t, err)
	require.False(t, claimed)

	got, err := st.RefreshTokenByHash(ctx, rt.TokenHash)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
}

func TestIntegration_RevokeRefreshTokenIfActive_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.RevokeRefreshTokenIfActive(context.Background(), hashOf("missing"), time.Now().UTC())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_TouchRefreshToken_UpdatesLastUsedAt(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")
	rt := seedRefreshToken(t, st, user, "touch-refresh", time.Hour)

	now := time.Now().UTC()
	require.NoError(t, st.TouchRefreshToken(ctx, rt.TokenHash, now))

	got, err := st.RefreshTokenByHash(ctx, rt.TokenHash)
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	require.WithinDuration(t, now, *got.LastUsedAt, 2*time.Second)
}

func TestIntegration_ActiveRefreshTokensByUser_OrderAndFiltering(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")
	other := seedUser(t, st, "other@example.com")

	first := seedRefreshToken(t, st, user, "first", time.Hour)
	time.Sleep(10 * time.Millisecond)
	second := seedRefreshToken(t, st, user, "second", time.Hour)
	revoked := seedRefreshToken(t, st, user, "revoked", time.Hour)
	seedRefreshToken(t, st, other, "foreign", time.Hour)

	claimed, err := st.RevokeRefreshTokenIfActive(ctx, revoked.TokenHash, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)

	active, err := st.ActiveRefreshTokensByUser(ctx, user.ID, user.UserType)
	require.NoError(t, err)
	require.Len(t, active, 2)

	// Старейшие первыми.
	require.Equal(t, first.TokenHash, active[0].TokenHash)
	require.Equal(t, second.TokenHash, active[1].TokenHash)
}

func TestIntegration_ActiveRefreshTokensByFamily(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")

	familyID := uuid.NewString()
	now := time.Now().UTC()
	for i, plain := range []string{"fam-1", "fam-2"} {
		rt := &models.RefreshToken{
			TokenHash: hashOf(plain),
			UserID:    user.ID,
			UserType:  user.UserType,
			FamilyID:  familyID,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			ExpiresAt: now.Add(time.Hour),
		}
		require.NoError(t, st.SaveRefreshToken(ctx, rt))
	}
	seedRefreshToken(t, st, user, "other-family", time.Hour)

	family, err := st.ActiveRefreshTokensByFamily(ctx, familyID)
	require.NoError(t, err)
	require.Len(t, family, 2)
	for _, rt := range family {
		require.Equal(t, familyID, rt.FamilyID)
	}
}

func TestIntegration_ExpiredRefreshTokens_And_Delete(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	user := seedUser(t, st, "user@example.com")

	expired := seedRefreshToken(t, st, user, "expired", -time.Hour)
	seedRefreshToken(t, st, user, "alive", time.Hour)

	revokedExpired := seedRefreshToken(t, st, user, "revoked-expired", -time.Hour)
	claimed, err := st.RevokeRefreshTokenIfActive(ctx, revokedExpired.TokenHash, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, claimed)

	// Отозванные просроченные записи тоже подлежат очистке.
	got, err := st.ExpiredRefreshTokens(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 2)

	hashes := []string{got[0].TokenHash, got[1].TokenHash}
	require.Contains(t, hashes, expired.TokenHash)
	require.Contains(t, hashes, revokedExpired.TokenHash)

	require.NoError(t, st.DeleteRefreshToken(ctx, expired.TokenHash))
	_, err = st.RefreshTokenByHash(ctx, expired.TokenHash)
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = st.DeleteRefreshToken(ctx, expired.TokenHash)
	require.ErrorIs(t, err, storage.ErrNotFound)
}
