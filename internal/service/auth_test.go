package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"session-service/internal/events"
	"session-service/internal/models"
	"session-service/internal/storage"
	"session-service/mocks"
)

func userWithPassword(t *testing.T, password string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := testUser()
	user.PasswordHash = string(hash)

	return user
}

func expectPairIssued(st *mocks.MockTokenStorage, user *models.User) {
	st.EXPECT().ActiveRefreshTokensByUser(gomock.Any(), user.ID, user.UserType).Return(nil, nil)
	st.EXPECT().SaveAccessToken(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)
}

func TestLogin_OK(t *testing.T) {
	svc, st, repo, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := userWithPassword(t, "correct horse battery")

	var gotFields map[string]string
	repo.EXPECT().
		FirstByFields(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fields map[string]string) (*models.User, error) {
			gotFields = fields
			return user, nil
		})
	expectPairIssued(st, user)

	var attempts, successes int
	svc.bus.Subscribe(events.LoginAttempt, func(context.Context, events.Event) { attempts++ })
	svc.bus.Subscribe(events.LoginSuccess, func(context.Context, events.Event) { successes++ })

	result, err := svc.Login(context.Background(), "user", map[string]string{
		"email":    user.Email,
		"password": "correct horse battery",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)
	require.NotEmpty(t, result.AccessToken)
	require.Equal(t, user.ID, result.User.ID)

	// Пароль в поисковые поля не попадает.
	require.Equal(t, map[string]string{"email": user.Email}, gotFields)

	require.Equal(t, 1, attempts)
	require.Equal(t, 1, successes)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _, repo, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := userWithPassword(t, "correct horse battery")

	repo.EXPECT().FirstByFields(gomock.Any(), gomock.Any()).Return(user, nil)

	var failed *events.LoginFailedEvent
	svc.bus.Subscribe(events.LoginFailed, func(_ context.Context, e events.Event) {
		ev := e.(events.LoginFailedEvent)
		failed = &ev
	})

	_, err := svc.Login(context.Background(), "user", map[string]string{
		"email":    user.Email,
		"password": "wrong",
	}, nil)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotNil(t, failed)
	require.Equal(t, "invalid password", failed.Reason)
}

func TestLogin_UserNotFound(t *testing.T) {
	svc, _, repo, ctrl := newSvc(t)
	defer ctrl.Finish()

	repo.EXPECT().FirstByFields(gomock.Any(), gomock.Any()).Return(nil, fmtWrap(storage.ErrNotFound))

	var failed int
	svc.bus.Subscribe(events.LoginFailed, func(context.Context, events.Event) { failed++ })

	_, err := svc.Login(context.Background(), "user", map[string]string{
		"email":    "ghost@example.com",
		"password": "whatever",
	}, nil)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, 1, failed)
}

func TestLogin_UnknownUserType(t *testing.T) {
	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.Login(context.Background(), "admin", map[string]string{
		"email":    "a@b.c",
		"password": "whatever",
	}, nil)
	require.ErrorIs(t, err, ErrUnknownUserType)
}

func TestLogin_RefreshDisabled_AccessOnly(t *testing.T) {
	svc, st, repo, ctrl := newSvc(t)
	defer ctrl.Finish()

	svc.cfg.RefreshEnabled = false

	user := userWithPassword(t, "correct horse battery")

	repo.EXPECT().FirstByFields(gomock.Any(), gomock.Any()).Return(user, nil)
	st.EXPECT().SaveAccessToken(gomock.Any(), gomock.Any()).Return(nil)

	result, err := svc.Login(context.Background(), "user", map[string]string{
		"email":    user.Email,
		"password": "correct horse battery",
	}, nil)
	require.NoError(t, err)
	require.Nil(t, result.Tokens)
	require.NotEmpty(t, result.AccessToken)
	require.NotNil(t, result.ExpiresAt)
}

func TestRegisterUser_OK(t *testing.T) {
	svc, st, repo, ctrl := newSvc(t)
	defer ctrl.Finish()

	var saved *models.User
	repo.EXPECT().
		SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		})

	st.EXPECT().ActiveRefreshTokensByUser(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)
	st.EXPECT().SaveAccessToken(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	result, err := svc.RegisterUser(context.Background(), "user", "New.User@Example.COM", "strong password", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Tokens)

	require.Equal(t, "new.user@example.com", saved.Email)
	require.Equal(t, "user", saved.UserType)
	require.NotEqual(t, uuid.Nil, saved.ID)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.PasswordHash), []byte("strong password")))
	require.WithinDuration(t, time.Now().UTC(), saved.CreatedAt, 2*time.Second)
}

func TestRegisterUser_EmailTaken(t *testing.T) {
	svc, _, repo, ctrl := newSvc(t)
	defer ctrl.Finish()

	repo.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(fmtWrap(storage.ErrAlreadyExists))

	_, err := svc.RegisterUser(context.Background(), "user", "taken@example.com", "strong password", nil)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterUser_Validation(t *testing.T) {
	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"invalid email", "not-an-email", "strong password", ErrInvalidEmail},
		{"empty email", "", "strong password", ErrInvalidEmail},
		{"empty password", "a@b.example", "", ErrEmptyPassword},
		{"short password", "a@b.example", "short", ErrWeakPassword},
		{"overlong password", "a@b.example", string(make([]byte, 100)), ErrWeakPassword},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RegisterUser(context.Background(), "user", tc.email, tc.password, nil)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRegisterUser_UnknownUserType(t *testing.T) {
	svc, _, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.RegisterUser(context.Background(), "admin", "a@b.example", "strong password", nil)
	require.ErrorIs(t, err, ErrUnknownUserType)
}
