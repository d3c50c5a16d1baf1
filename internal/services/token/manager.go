package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// AuthAPI is the slice of the auth service the manager needs.
type AuthAPI interface {
	// RefreshToken performs the actual network refresh. On success the
	// auth service has already installed the new token on the
	// transport.
	RefreshToken(ctx context.Context) error

	// TokenExpiry returns the current token expiry, false when no
	// token is held.
	TokenExpiry() (time.Time, bool)
}

// Config controls refresh behavior.
type Config struct {
	CheckInterval   time.Duration // Monitor tick, default 30s
	ExpiryThreshold time.Duration // Proactive refresh window, default 5m
	RefreshAttempts int           // Attempts per refresh, default 3
	RefreshDelay    time.Duration // Fixed delay between attempts
}

// DefaultConfig returns the standard refresh settings.
func DefaultConfig() Config {
	return Config{
		CheckInterval:   30 * time.Second,
		ExpiryThreshold: 5 * time.Minute,
		RefreshAttempts: 3,
		RefreshDelay:    2 * time.Second,
	}
}

// Manager owns the single session credential's lifecycle. Any in-flight
// request may discover an expired token and call HandleUnauthorized
// concurrently, so every refresh entry point funnels through a
// single-flight guard: one caller becomes the leader and performs the
// network refresh, everyone else waits on the same outcome. Two
// concurrent refresh calls would otherwise race, with the second
// invalidating the token the first just handed out.
type Manager struct {
	auth   AuthAPI
	cfg    Config
	logger *events.Logger

	mu       sync.Mutex
	inflight *refreshCall
	status   models.TokenStatus
	watchers []chan models.TokenStatus

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// refreshCall is the shared awaitable outcome of one in-flight refresh.
type refreshCall struct {
	done chan struct{}
	err  error
}

// NewManager creates a token refresh manager.
func NewManager(auth AuthAPI, cfg Config, logger *events.Logger) *Manager {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ExpiryThreshold <= 0 {
		cfg.ExpiryThreshold = 5 * time.Minute
	}
	if cfg.RefreshAttempts <= 0 {
		cfg.RefreshAttempts = 3
	}

	return &Manager{
		auth:   auth,
		cfg:    cfg,
		logger: logger.WithField("service", "token_manager"),
		status: models.TokenStatus{State: models.TokenNone},
	}
}

// Status returns the current credential status.
func (m *Manager) Status() models.TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// StatusChanges subscribes to credential status transitions.
func (m *Manager) StatusChanges() <-chan models.TokenStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan models.TokenStatus, 16)
	m.watchers = append(m.watchers, ch)
	return ch
}

// StartMonitoring runs the periodic status check. The check recomputes
// the status from the current expiry and proactively refreshes once the
// remaining validity drops below the threshold.
func (m *Manager) StartMonitoring() {
	m.mu.Lock()
	if m.monitorCancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.monitorCancel = cancel
	m.monitorDone = make(chan struct{})
	done := m.monitorDone
	m.mu.Unlock()

	m.logger.WithField("interval", m.cfg.CheckInterval).Info("Token monitoring started")

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		m.check(ctx)
		for {
			select {
			case <-ticker.C:
				m.check(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopMonitoring stops the periodic check.
func (m *Manager) StopMonitoring() {
	m.mu.Lock()
	cancel := m.monitorCancel
	done := m.monitorDone
	m.monitorCancel = nil
	m.monitorDone = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		m.logger.Info("Token monitoring stopped")
	}
}

// ForceRefresh unconditionally refreshes the token, joining any refresh
// already in flight.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	return m.refresh(ctx)
}

// HandleUnauthorized is called by the request executor on a 401. It
// refreshes the token and reports whether the original call is worth
// re-issuing.
func (m *Manager) HandleUnauthorized(ctx context.Context) bool {
	err := m.refresh(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Refresh after 401 failed")
	}
	return err == nil
}

// Reset clears the credential state on logout.
func (m *Manager) Reset() {
	m.setStatus(models.TokenStatus{State: models.TokenNone})
}

// check recomputes the status from the current expiry and triggers a
// proactive refresh when needed.
func (m *Manager) check(ctx context.Context) {
	expiresAt, ok := m.auth.TokenExpiry()
	if !ok {
		m.setStatus(models.TokenStatus{State: models.TokenNone})
		return
	}

	remaining := time.Until(expiresAt)
	switch {
	case remaining <= 0:
		m.setStatus(models.TokenStatus{State: models.TokenExpired, ExpiresAt: expiresAt})
	case remaining < m.cfg.ExpiryThreshold:
		m.setStatus(models.TokenStatus{State: models.TokenExpiringSoon, ExpiresAt: expiresAt})
	default:
		m.setStatus(models.TokenStatus{State: models.TokenValid, ExpiresAt: expiresAt})
		return
	}

	if err := m.refresh(ctx); err != nil {
		m.logger.WithError(err).Warn("Proactive refresh failed")
	}
}

// refresh is the single entry point for all refresh paths. The first
// caller through the guard becomes the leader; joiners wait on the
// leader's outcome instead of issuing a second network call.
func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()

		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.setStatusLocked(models.TokenStatus{State: models.TokenRefreshing})
	m.mu.Unlock()

	err := m.doRefresh(ctx)

	m.mu.Lock()
	call.err = err
	m.inflight = nil
	if err != nil {
		m.setStatusLocked(models.TokenStatus{State: models.TokenRefreshFailed, Reason: err.Error()})
	} else if expiresAt, ok := m.auth.TokenExpiry(); ok {
		m.setStatusLocked(models.TokenStatus{State: models.TokenValid, ExpiresAt: expiresAt})
	} else {
		m.setStatusLocked(models.TokenStatus{State: models.TokenNone})
	}
	m.mu.Unlock()

	close(call.done)
	return err
}

// doRefresh performs the leader's attempts.
func (m *Manager) doRefresh(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= m.cfg.RefreshAttempts; attempt++ {
		if attempt > 1 && m.cfg.RefreshDelay > 0 {
			select {
			case <-time.After(m.cfg.RefreshDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		m.logger.WithField("attempt", attempt).Debug("Refreshing token")

		err := m.auth.RefreshToken(ctx)
		if err == nil {
			m.logger.Info("Token refreshed")
			return nil
		}

		lastErr = err
		m.logger.WithError(err).WithField("attempt", attempt).Warn("Refresh attempt failed")

		// Nothing to refresh with; retrying cannot help.
		if errors.Is(err, models.ErrNotAuthenticated) {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", models.ErrRefreshFailed, m.cfg.RefreshAttempts, lastErr)
}

// setStatus publishes a status transition.
func (m *Manager) setStatus(status models.TokenStatus) {
	m.mu.Lock()
	m.setStatusLocked(status)
	m.mu.Unlock()
}

// setStatusLocked expects m.mu held.
func (m *Manager) setStatusLocked(status models.TokenStatus) {
	if m.status.State == status.State && m.status.ExpiresAt.Equal(status.ExpiresAt) {
		return
	}

	m.status = status
	for _, ch := range m.watchers {
		select {
		case ch <- status:
		default:
		}
	}
}
