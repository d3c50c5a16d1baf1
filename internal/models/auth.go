package models

import "time"

// AuthRequest for register sign-in.
type AuthRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	StoreID  string `json:"store_id"`
	DeviceID string `json:"device_id"`
}

// RefreshRequest for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceID     string `json:"device_id"`
}

// TokenInfo stores the current session credential.
type TokenInfo struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Email        string    `json:"email"`
}

// IsExpired checks if the token has expired.
func (t *TokenInfo) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// ExpiresWithin reports whether the token expires inside the window.
func (t *TokenInfo) ExpiresWithin(window time.Duration) bool {
	return time.Until(t.ExpiresAt) < window
}

// AuthPhase is the session-level authentication state.
type AuthPhase string

const (
	AuthUnauthenticated AuthPhase = "unauthenticated"
	AuthAuthenticating  AuthPhase = "authenticating"
	AuthAuthenticated   AuthPhase = "authenticated"
	AuthTokenExpired    AuthPhase = "token_expired"
	AuthError           AuthPhase = "error"
)

// AuthState is one observation of the session state stream.
type AuthState struct {
	Phase     AuthPhase `json:"phase"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Err       string    `json:"error,omitempty"`
}

// TokenState is the credential lifecycle state owned by the token
// refresh manager. All transitions happen inside the manager.
type TokenState string

const (
	TokenNone          TokenState = "no_token"
	TokenValid         TokenState = "valid"
	TokenExpiringSoon  TokenState = "expiring_soon"
	TokenExpired       TokenState = "expired"
	TokenRefreshing    TokenState = "refreshing"
	TokenRefreshFailed TokenState = "refresh_failed"
)

// TokenStatus is one observation of the credential state stream.
type TokenStatus struct {
	State     TokenState `json:"state"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
