package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/services/auth"
	"github.com/kirakosyanara/gropos-sub007/internal/transport"
	"github.com/kirakosyanara/gropos-sub007/test/testutil"
)

func newService(t *testing.T) (*auth.Service, *transport.MockTransport, string) {
	t.Helper()
	mock := transport.NewMockTransport()
	tokenFile := filepath.Join(t.TempDir(), "token.json")
	svc := auth.NewService(mock, "store-1", "device-1", tokenFile, testutil.NewTestLogger())
	return svc, mock, tokenFile
}

func tokenResponse(token, refresh string, expiresIn time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"token":         token,
		"refresh_token": refresh,
		"expires_at":    time.Now().Add(expiresIn).UTC().Format(time.RFC3339),
	}
}

func TestLogin(t *testing.T) {
	svc, mock, tokenFile := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))

	err := svc.Login(context.Background(), "cashier@example.com", "secret")
	require.NoError(t, err)

	// The session token is installed on the transport.
	assert.Equal(t, "access-1", mock.Token())

	state := svc.State()
	assert.Equal(t, models.AuthAuthenticated, state.Phase)
	assert.False(t, state.ExpiresAt.IsZero())

	// Signin must never take the 401 recovery path.
	require.Len(t, mock.Requests, 1)
	body, ok := mock.Requests[0].Body.(models.AuthRequest)
	require.True(t, ok)
	assert.Equal(t, "store-1", body.StoreID)
	assert.Equal(t, "device-1", body.DeviceID)

	// Token persisted for the next run, owner-only.
	info, err := os.Stat(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoginRejected(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusUnauthorized, map[string]string{
		"code":    "invalid_credentials",
		"message": "wrong password",
	})

	err := svc.Login(context.Background(), "cashier@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_credentials")
	assert.Equal(t, models.AuthError, svc.State().Phase)
	assert.Empty(t, mock.Token())
}

func TestLoginValidation(t *testing.T) {
	svc, mock, _ := newService(t)

	assert.Error(t, svc.Login(context.Background(), "", "secret"))
	assert.Error(t, svc.Login(context.Background(), "a@b.c", ""))
	assert.Empty(t, mock.Requests)
}

func TestRefreshToken(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))
	mock.AddResponse("/api/v1/auth/refresh", http.StatusOK,
		tokenResponse("access-2", "refresh-2", time.Hour))

	require.NoError(t, svc.Login(context.Background(), "cashier@example.com", "secret"))
	require.NoError(t, svc.RefreshToken(context.Background()))

	assert.Equal(t, "access-2", mock.Token())

	token, err := svc.Token()
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", token.RefreshToken)

	// The refresh request carried the old refresh token.
	refreshReq := mock.Requests[len(mock.Requests)-1]
	body, ok := refreshReq.Body.(models.RefreshRequest)
	require.True(t, ok)
	assert.Equal(t, "refresh-1", body.RefreshToken)
}

func TestRefreshTokenKeepsRefreshCredential(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))
	// Backend rotates only the access token.
	mock.AddResponse("/api/v1/auth/refresh", http.StatusOK, map[string]interface{}{
		"token":      "access-2",
		"expires_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})

	require.NoError(t, svc.Login(context.Background(), "cashier@example.com", "secret"))
	require.NoError(t, svc.RefreshToken(context.Background()))

	token, err := svc.Token()
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", token.RefreshToken)
}

func TestRefreshTokenWithoutSession(t *testing.T) {
	svc, mock, _ := newService(t)

	err := svc.RefreshToken(context.Background())
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.Empty(t, mock.Requests)
}

func TestRefreshTokenRejected(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))
	mock.AddResponse("/api/v1/auth/refresh", http.StatusUnauthorized, map[string]string{
		"code":    "refresh_revoked",
		"message": "refresh token revoked",
	})

	require.NoError(t, svc.Login(context.Background(), "cashier@example.com", "secret"))

	err := svc.RefreshToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.AuthTokenExpired, svc.State().Phase)
}

func TestLogout(t *testing.T) {
	svc, mock, tokenFile := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))
	mock.AddResponse("/api/v1/auth/signout", http.StatusOK, nil)

	require.NoError(t, svc.Login(context.Background(), "cashier@example.com", "secret"))
	require.NoError(t, svc.Logout(context.Background()))

	assert.Empty(t, mock.Token())
	assert.Equal(t, models.AuthUnauthenticated, svc.State().Phase)
	assert.Equal(t, 1, mock.RequestCount("/api/v1/auth/signout"))

	_, err := svc.Token()
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)

	_, err = os.Stat(tokenFile)
	assert.True(t, os.IsNotExist(err))
}

func TestSessionRestoredAcrossRestart(t *testing.T) {
	mock := transport.NewMockTransport()
	tokenFile := filepath.Join(t.TempDir(), "token.json")
	logger := testutil.NewTestLogger()

	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))

	svc := auth.NewService(mock, "store-1", "device-1", tokenFile, logger)
	require.NoError(t, svc.Login(context.Background(), "cashier@example.com", "secret"))

	// A new service instance simulates a register restart.
	mock2 := transport.NewMockTransport()
	restored := auth.NewService(mock2, "store-1", "device-1", tokenFile, logger)

	assert.Equal(t, models.AuthAuthenticated, restored.State().Phase)
	assert.Equal(t, "access-1", mock2.Token())

	expiry, ok := restored.TokenExpiry()
	assert.True(t, ok)
	assert.True(t, expiry.After(time.Now()))
}

func TestExpiredPersistedTokenIgnored(t *testing.T) {
	mock := transport.NewMockTransport()
	tokenFile := filepath.Join(t.TempDir(), "token.json")

	expired := &models.TokenInfo{
		Token:     "stale",
		ExpiresAt: time.Now().Add(-time.Hour),
		Email:     "cashier@example.com",
	}
	data, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tokenFile, data, 0600))

	svc := auth.NewService(mock, "store-1", "device-1", tokenFile, testutil.NewTestLogger())

	assert.Equal(t, models.AuthUnauthenticated, svc.State().Phase)
	assert.Empty(t, mock.Token())
}

func TestStateChanges(t *testing.T) {
	svc, mock, _ := newService(t)
	mock.AddResponse("/api/v1/auth/signin", http.StatusOK,
		tokenResponse("access-1", "refresh-1", time.Hour))

	changes := svc.StateChanges()

	require.NoError(t, svc.Login(context.Background(), "cashier@example.com", "secret"))

	var phases []models.AuthPhase
	for len(phases) < 2 {
		select {
		case state := <-changes:
			phases = append(phases, state.Phase)
		case <-time.After(time.Second):
			t.Fatalf("timed out after phases %v", phases)
		}
	}

	assert.Equal(t, models.AuthAuthenticating, phases[0])
	assert.Equal(t, models.AuthAuthenticated, phases[1])
}
