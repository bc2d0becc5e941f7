package signer

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type testClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func newSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := New("unit-secret", "HS256")
	require.NoError(t, err)
	return s
}

func TestNew_AlgorithmSelection(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		s, err := New("secret", alg)
		require.NoError(t, err)
		require.Equal(t, alg, s.Algorithm())
	}

	// Пустой алгоритм — HS256 по умолчанию.
	s, err := New("secret", "")
	require.NoError(t, err)
	require.Equal(t, "HS256", s.Algorithm())

	_, err = New("secret", "RS256")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = New("", "HS256")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	now := time.Now().UTC()

	token, err := s.Issue(testClaims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	var got testClaims
	require.NoError(t, s.Verify(token, &got))
	require.Equal(t, "u-1", got.UserID)
}

func TestVerify_WrongSecret_InvalidSignature(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	token, err := s.Issue(testClaims{UserID: "u-1"})
	require.NoError(t, err)

	other, err := New("another-secret", "HS256")
	require.NoError(t, err)

	var got testClaims
	err = other.Verify(token, &got)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed_InvalidSignature(t *testing.T) {
	t.Parallel()

	s := newSigner(t)

	var got testClaims
	err := s.Verify("not-a-jwt", &got)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	past := time.Now().UTC().Add(-time.Hour)

	token, err := s.Issue(testClaims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	})
	require.NoError(t, err)

	var got testClaims
	err = s.Verify(token, &got)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_AlgorithmMismatch(t *testing.T) {
	t.Parallel()

	// Токен, подписанный HS512, не должен проходить у HS256-verifier с тем же секретом.
	issuer, err := New("shared-secret", "HS512")
	require.NoError(t, err)

	token, err := issuer.Issue(testClaims{UserID: "u-1"})
	require.NoError(t, err)

	verifier, err := New("shared-secret", "HS256")
	require.NoError(t, err)

	var got testClaims
	err = verifier.Verify(token, &got)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestIssue_WithoutExpiry_OmitsExpClaim(t *testing.T) {
	t.Parallel()

	s := newSigner(t)
	token, err := s.Issue(testClaims{UserID: "u-1"})
	require.NoError(t, err)

	// Токен без exp валиден и в payload клейм отсутствует физически.
	var got testClaims
	require.NoError(t, s.Verify(token, &got))
	require.Nil(t, got.ExpiresAt)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	_, hasExp := raw["exp"]
	require.False(t, hasExp)
}
