package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/transport"
)

// Service handles the register's authenticated session: sign-in,
// sign-out, token refresh, and token persistence across restarts. The
// token refresh manager drives RefreshToken; everything else is
// user-triggered.
type Service struct {
	transport transport.Transport
	logger    *events.Logger

	storeID  string
	deviceID string

	mu        sync.Mutex
	token     *models.TokenInfo
	tokenFile string
	state     models.AuthState
	watchers  []chan models.AuthState
}

// NewService creates an auth service.
func NewService(t transport.Transport, storeID, deviceID, tokenFile string, logger *events.Logger) *Service {
	s := &Service{
		transport: t,
		storeID:   storeID,
		deviceID:  deviceID,
		tokenFile: tokenFile,
		logger:    logger.WithField("service", "auth"),
		state:     models.AuthState{Phase: models.AuthUnauthenticated},
	}

	// Pick up a persisted session from a previous run.
	if err := s.loadToken(); err == nil && s.token != nil && !s.token.IsExpired() {
		s.transport.SetToken(s.token.Token)
		s.state = models.AuthState{Phase: models.AuthAuthenticated, ExpiresAt: s.token.ExpiresAt}
	}

	return s
}

// State returns the current session state.
func (s *Service) State() models.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StateChanges subscribes to session state transitions.
func (s *Service) StateChanges() <-chan models.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.AuthState, 16)
	s.watchers = append(s.watchers, ch)
	return ch
}

// Login authenticates the register.
func (s *Service) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("email and password required")
	}

	s.setState(models.AuthState{Phase: models.AuthAuthenticating})
	s.logger.WithField("email", email).Info("Logging in")

	req := models.AuthRequest{
		Email:    email,
		Password: password,
		StoreID:  s.storeID,
		DeviceID: s.deviceID,
	}

	resp, err := s.transport.Do(ctx, &transport.Request{
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/signin",
		Body:        req,
		NoAuthRetry: true,
	})
	if err != nil {
		s.setState(models.AuthState{Phase: models.AuthError, Err: err.Error()})
		return fmt.Errorf("login request: %w", err)
	}
	if !resp.IsSuccess() {
		apiErr := resp.APIError()
		s.setState(models.AuthState{Phase: models.AuthError, Err: apiErr.Error()})
		return apiErr
	}

	token, err := parseTokenResponse(resp, email)
	if err != nil {
		s.setState(models.AuthState{Phase: models.AuthError, Err: err.Error()})
		return err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.transport.SetToken(token.Token)

	if err := s.saveToken(); err != nil {
		s.logger.WithError(err).Warn("Failed to save token")
	}

	s.setState(models.AuthState{Phase: models.AuthAuthenticated, ExpiresAt: token.ExpiresAt})
	s.logger.Info("Login successful")
	return nil
}

// Logout clears authentication.
func (s *Service) Logout(ctx context.Context) error {
	s.logger.Info("Logging out")

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token != nil && !token.IsExpired() {
		_, err := s.transport.Do(ctx, &transport.Request{
			Method:      http.MethodPost,
			Path:        "/api/v1/auth/signout",
			NoAuthRetry: true,
		})
		if err != nil {
			s.logger.WithError(err).Warn("Server logout failed")
		}
	}

	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()
	s.transport.SetToken("")

	if s.tokenFile != "" {
		_ = os.Remove(s.tokenFile)
	}

	s.setState(models.AuthState{Phase: models.AuthUnauthenticated})
	return nil
}

// RefreshToken performs the network refresh. The token refresh manager
// is the only caller during normal operation and already serializes
// concurrent refreshes; this method stays safe to call directly anyway.
func (s *Service) RefreshToken(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == nil || token.RefreshToken == "" {
		return models.ErrNotAuthenticated
	}

	s.logger.Debug("Refreshing token")

	resp, err := s.transport.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/refresh",
		Body: models.RefreshRequest{
			RefreshToken: token.RefreshToken,
			DeviceID:     s.deviceID,
		},
		NoAuthRetry: true,
	})
	if err != nil {
		return fmt.Errorf("refresh request: %w", err)
	}
	if !resp.IsSuccess() {
		s.setState(models.AuthState{Phase: models.AuthTokenExpired})
		return fmt.Errorf("refresh rejected: %w", resp.APIError())
	}

	refreshed, err := parseTokenResponse(resp, token.Email)
	if err != nil {
		return err
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	s.mu.Lock()
	s.token = refreshed
	s.mu.Unlock()

	s.transport.SetToken(refreshed.Token)

	if err := s.saveToken(); err != nil {
		s.logger.WithError(err).Warn("Failed to save token")
	}

	s.setState(models.AuthState{Phase: models.AuthAuthenticated, ExpiresAt: refreshed.ExpiresAt})
	return nil
}

// TokenExpiry returns the current token expiry.
func (s *Service) TokenExpiry() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return time.Time{}, false
	}
	return s.token.ExpiresAt, true
}

// Token returns the current token if one is held and unexpired.
func (s *Service) Token() (*models.TokenInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil || s.token.IsExpired() {
		return nil, models.ErrNotAuthenticated
	}
	return s.token, nil
}

// setState publishes a session state transition.
func (s *Service) setState(state models.AuthState) {
	s.mu.Lock()
	s.state = state
	watchers := make([]chan models.AuthState, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- state:
		default:
		}
	}
}

// parseTokenResponse decodes a signin/refresh response body.
func parseTokenResponse(resp *transport.Response, email string) (*models.TokenInfo, error) {
	var body struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    string `json:"expires_at"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, err
	}
	if body.Token == "" {
		return nil, fmt.Errorf("invalid auth response: missing token")
	}

	expiresAt, _ := time.Parse(time.RFC3339, body.ExpiresAt)
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(12 * time.Hour) // Default expiry
	}

	return &models.TokenInfo{
		Token:        body.Token,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    expiresAt,
		Email:        email,
	}, nil
}

// Token persistence

func (s *Service) saveToken() error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if s.tokenFile == "" || token == nil {
		return nil
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	// Save with restricted permissions
	return os.WriteFile(s.tokenFile, data, 0600)
}

func (s *Service) loadToken() error {
	if s.tokenFile == "" {
		return fmt.Errorf("no token file configured")
	}

	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var token models.TokenInfo
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	s.token = &token
	return nil
}
