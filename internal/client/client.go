package client

import (
	"context"
	"fmt"

	"github.com/kirakosyanara/gropos-sub007/internal/config"
	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
	"github.com/kirakosyanara/gropos-sub007/internal/queue"
	"github.com/kirakosyanara/gropos-sub007/internal/services/auth"
	"github.com/kirakosyanara/gropos-sub007/internal/services/sync"
	"github.com/kirakosyanara/gropos-sub007/internal/services/token"
	"github.com/kirakosyanara/gropos-sub007/internal/transport"
)

// Client wires the sync engine together and provides the high-level
// API the binary talks to. Everything is passed explicitly; no
// component reads ambient globals.
type Client struct {
	Auth   *auth.Service
	Token  *token.Manager
	Queue  queue.Store
	Worker *sync.Worker

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	push      *transport.PushClient
}

// New creates a gropos client.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	transportClient := transport.NewTransport(&cfg.API, logger)

	store, err := queue.NewSQLiteStore(cfg.Queue.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	authService := auth.NewService(
		transportClient,
		cfg.Auth.StoreID,
		cfg.API.DeviceID,
		cfg.Auth.TokenFile,
		logger,
	)

	tokenManager := token.NewManager(authService, token.Config{
		CheckInterval:   cfg.Token.CheckInterval,
		ExpiryThreshold: cfg.Token.ExpiryThreshold,
		RefreshAttempts: cfg.Token.RefreshAttempts,
		RefreshDelay:    cfg.Token.RefreshDelay,
	}, logger)

	// 401s anywhere on the transport funnel into the manager's
	// single-flight refresh.
	transportClient.SetAuthorizer(tokenManager)

	handler := sync.NewHandler(transportClient, logger)
	worker := sync.NewWorker(store, handler, transportClient, sync.WorkerConfig{
		Interval:    cfg.Sync.Interval,
		BaseDelay:   cfg.Sync.BaseDelay,
		MaxDelay:    cfg.Sync.MaxDelay,
		MaxExponent: cfg.Sync.MaxExponent,
		Jitter:      cfg.Sync.Jitter,
	}, logger)

	return &Client{
		Auth:      authService,
		Token:     tokenManager,
		Queue:     store,
		Worker:    worker,
		config:    cfg,
		logger:    logger,
		transport: transportClient,
	}, nil
}

// Enqueue adds one unit of outbound work. Safe to call while offline;
// the item is persisted locally and delivered by the next drain.
func (c *Client) Enqueue(ctx context.Context, item *models.QueuedItem) error {
	return c.Queue.Enqueue(ctx, item)
}

// Ping probes backend connectivity.
func (c *Client) Ping(ctx context.Context) bool {
	return c.transport.Ping(ctx)
}

// Start brings up the background machinery: token monitoring, the sync
// worker, and the push channel when a session exists.
func (c *Client) Start(ctx context.Context) error {
	c.Token.StartMonitoring()
	c.Worker.Start()

	if info, err := c.Auth.Token(); err == nil {
		push := transport.NewPushClient(c.config.API.BaseURL, c.config.API.DeviceID, c.logger)
		if err := push.Connect(ctx, info.Token); err != nil {
			// Push is an optimization; polling still covers delivery.
			c.logger.WithError(err).Warn("Push channel unavailable")
		} else {
			c.push = push
			go c.watchPush(push)
		}
	}

	return nil
}

// Stop tears the background machinery down.
func (c *Client) Stop() {
	if c.push != nil {
		_ = c.push.Close()
		c.push = nil
	}
	c.Worker.Stop()
	c.Token.StopMonitoring()
}

// Close releases all resources.
func (c *Client) Close() error {
	c.Stop()
	if err := c.Queue.Close(); err != nil {
		return err
	}
	return c.transport.Close()
}

// Logout ends the session and resets credential state.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Auth.Logout(ctx)
	c.Token.Reset()
	return err
}

// watchPush reacts to backend nudges.
func (c *Client) watchPush(push *transport.PushClient) {
	for msg := range push.Messages() {
		switch msg.Type {
		case models.PushSync:
			c.logger.Debug("Push: sync requested")
			c.Worker.ResetBackoff()
			c.Worker.TriggerSync()

		case models.PushTokenRevoked:
			c.logger.Warn("Push: token revoked")
			if err := c.Token.ForceRefresh(context.Background()); err != nil {
				c.logger.WithError(err).Warn("Refresh after revocation failed")
			}

		default:
			c.logger.WithField("type", msg.Type).Debug("Ignoring push type")
		}
	}
}
