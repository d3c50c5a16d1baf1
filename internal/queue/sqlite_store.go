package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kirakosyanara/gropos-sub007/internal/events"
	"github.com/kirakosyanara/gropos-sub007/internal/models"
)

// SQLiteStore implements a durable SQLite-backed queue.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite queue store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "queue_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS queue_items (
        id TEXT PRIMARY KEY,
        type TEXT NOT NULL,
        payload BLOB NOT NULL,
        attempts INTEGER NOT NULL DEFAULT 0,
        enqueued_at TIMESTAMP NOT NULL,
        last_error TEXT
    );

    CREATE INDEX IF NOT EXISTS idx_queue_items_order ON queue_items(enqueued_at, id);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, currentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

const currentSchemaVersion = 1

// Enqueue appends an item durably.
func (s *SQLiteStore) Enqueue(ctx context.Context, item *models.QueuedItem) error {
	if len(item.Payload) == 0 {
		return ErrEmptyPayload
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO queue_items (id, type, payload, attempts, enqueued_at, last_error)
        VALUES (?, ?, ?, ?, ?, ?)
    `, item.ID, string(item.Type), []byte(item.Payload), item.Attempts, item.EnqueuedAt, item.LastError)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"item_id": item.ID,
		"type":    item.Type,
		"size":    len(item.Payload),
	}).Debug("Item enqueued")

	return nil
}

// PendingCount returns the current backlog size.
func (s *SQLiteStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queue_items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// Items returns pending items in FIFO order.
func (s *SQLiteStore) Items(ctx context.Context) ([]*models.QueuedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, type, payload, attempts, enqueued_at, last_error
        FROM queue_items
        ORDER BY enqueued_at, id
    `)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*models.QueuedItem
	for rows.Next() {
		var item models.QueuedItem
		var itemType string
		var lastError sql.NullString

		if err := rows.Scan(&item.ID, &itemType, (*[]byte)(&item.Payload), &item.Attempts, &item.EnqueuedAt, &lastError); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		item.Type = models.ItemType(itemType)
		if lastError.Valid {
			item.LastError = lastError.String
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// Drain processes pending items through the handler in FIFO order.
// Each verdict is committed before the next item is handled.
func (s *SQLiteStore) Drain(ctx context.Context, handler Handler) (int, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot pending items: %w", err)
	}

	synced := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return synced, err
		}

		result := handler(ctx, item)

		if err := s.commit(ctx, item, result); err != nil {
			return synced, fmt.Errorf("commit verdict for %s: %w", item.ID, err)
		}

		if result.Verdict == models.VerdictSuccess {
			synced++
		}
	}

	return synced, nil
}

// commit applies one verdict atomically.
func (s *SQLiteStore) commit(ctx context.Context, item *models.QueuedItem, result models.ProcessResult) error {
	switch result.Verdict {
	case models.VerdictSuccess:
		_, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", item.ID)
		return err

	case models.VerdictAbandon:
		s.logger.WithFields(map[string]interface{}{
			"item_id": item.ID,
			"type":    item.Type,
			"reason":  result.Reason,
		}).Error("Abandoning item")
		_, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE id = ?", item.ID)
		return err

	case models.VerdictRetry:
		_, err := s.db.ExecContext(ctx, `
            UPDATE queue_items SET attempts = attempts + 1, last_error = ? WHERE id = ?
        `, result.Reason, item.ID)
		return err

	default:
		return fmt.Errorf("unknown verdict %d", result.Verdict)
	}
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
