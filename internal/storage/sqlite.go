package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kiku/internal/models"
)

// SQLiteRepository stores conversations in SQLite. Timestamps are unix nanoseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	// immediate transactions take the write lock up front, so concurrent
	// appends queue on busy_timeout instead of failing on lock upgrade
	db, err := sql.Open("sqlite3", dbPath+"?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		custom_title INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_owner_updated ON conversations(owner_id, updated_at DESC, id);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, seq),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func notFound(id string) error {
	return fmt.Errorf("%w: conversation %s", models.ErrNotFound, id)
}

// Create inserts a conversation without messages.
func (s *SQLiteRepository) Create(ctx context.Context, conv *models.Conversation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, title, custom_title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OwnerID, conv.Title, conv.CustomTitle, conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(),
	)
	return err
}

// Get returns a conversation with its messages in order.
func (s *SQLiteRepository) Get(ctx context.Context, ownerID, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, custom_title, created_at, updated_at
		 FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CustomTitle, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	conv.CreatedAt = fromNanos(created)
	conv.UpdatedAt = fromNanos(updated)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM conversation_messages
		 WHERE conversation_id = ? ORDER BY seq`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conv.Messages = []models.ConversationTurn{}
	for rows.Next() {
		var turn models.ConversationTurn
		var ts int64
		if err := rows.Scan(&turn.Role, &turn.Content, &ts); err != nil {
			return nil, err
		}
		turn.Timestamp = fromNanos(ts)
		conv.Messages = append(conv.Messages, turn)
	}
	return &conv, rows.Err()
}

// List returns the owner's conversations, each with at most its first message.
func (s *SQLiteRepository) List(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.custom_title, c.created_at, c.updated_at,
		        m.role, m.content, m.created_at
		 FROM conversations c
		 LEFT JOIN conversation_messages m ON m.conversation_id = c.id AND m.seq = 0
		 WHERE c.owner_id = ?
		 ORDER BY c.updated_at DESC, c.id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		conv := models.Conversation{OwnerID: ownerID}
		var created, updated int64
		var role, content sql.NullString
		var ts sql.NullInt64
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CustomTitle, &created, &updated, &role, &content, &ts); err != nil {
			return nil, err
		}
		conv.CreatedAt = fromNanos(created)
		conv.UpdatedAt = fromNanos(updated)
		if content.Valid {
			conv.Messages = []models.ConversationTurn{{
				Role:      models.Role(role.String),
				Content:   content.String,
				Timestamp: fromNanos(ts.Int64),
			}}
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Append inserts turns in one transaction and advances updated_at to the last turn.
func (s *SQLiteRepository) Append(ctx context.Context, ownerID, id string, turns []models.ConversationTurn, now time.Time) ([]models.ConversationTurn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}

	var nextSeq int
	var lastTS int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0), COALESCE(MAX(created_at), 0)
		 FROM conversation_messages WHERE conversation_id = ?`, id,
	).Scan(&nextSeq, &lastTS)
	if err != nil {
		return nil, err
	}
	var last time.Time
	if lastTS != 0 {
		last = fromNanos(lastTS)
	}
	stamped := models.StampTurns(turns, last, now)

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, seq, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i, turn := range stamped {
		if _, err := stmt.ExecContext(ctx, id, nextSeq+i, string(turn.Role), turn.Content, turn.Timestamp.UnixNano()); err != nil {
			return nil, err
		}
	}
	updated := stamped[len(stamped)-1].Timestamp.UnixNano()
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, updated, id,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stamped, nil
}

// Rename sets the title and updated_at.
func (s *SQLiteRepository) Rename(ctx context.Context, ownerID, id, title string, custom bool, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, custom_title = ?, updated_at = MAX(updated_at, ?)
		 WHERE id = ? AND owner_id = ?`,
		title, custom, now.UnixNano(), id, ownerID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// Delete removes a conversation and its messages. A missing conversation is not an error.
func (s *SQLiteRepository) Delete(ctx context.Context, ownerID, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = ?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountConversations returns the total number of conversations across owners.
func (s *SQLiteRepository) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}
