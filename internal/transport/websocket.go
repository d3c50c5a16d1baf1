package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// PushClient subscribes to the backend event feed. The backend nudges
// registers over this channel ("sync", "token_revoked") so a restored
// connection is picked up immediately instead of on the next backoff
// tick.
type PushClient struct {
	url      string
	deviceID string
	logger   *events.Logger

	// Connection state
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	messages chan models.PushMessage
	done     chan struct{}

	pingInterval time.Duration
}

// NewPushClient creates a push channel client.
func NewPushClient(baseURL, deviceID string, logger *events.Logger) *PushClient {
	wsURL := baseURL
	if len(wsURL) > 4 && wsURL[:4] == "http" {
		wsURL = "ws" + wsURL[4:] // Convert http(s) to ws(s)
	}

	return &PushClient{
		url:          wsURL + "/api/v1/events",
		deviceID:     deviceID,
		logger:       logger.WithField("component", "push_client"),
		messages:     make(chan models.PushMessage, 100),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
	}
}

// Connect establishes the WebSocket connection.
func (c *PushClient) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	c.logger.WithField("url", c.url).Info("Connecting to push channel")

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	if c.deviceID != "" {
		headers.Set("X-Device-ID", c.deviceID)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("push channel connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("push channel connect failed: %w", err)
	}

	c.conn = conn
	c.closed = false

	go c.readLoop(conn)
	go c.pingLoop(conn)

	c.logger.Info("Push channel connected")
	return nil
}

// Messages returns the push message channel. It is closed when the
// connection drops or Close is called.
func (c *PushClient) Messages() <-chan models.PushMessage {
	return c.messages
}

// Close shuts down the connection.
func (c *PushClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// readLoop decodes pushes until the connection drops.
func (c *PushClient) readLoop(conn *websocket.Conn) {
	defer close(c.messages)

	for {
		var msg models.PushMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()

			if !closed {
				c.logger.WithError(err).Warn("Push channel read failed")
			}
			return
		}

		select {
		case c.messages <- msg:
		default:
			c.logger.Debug("Push channel full, dropping message")
		}
	}
}

// pingLoop keeps the connection alive.
func (c *PushClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
