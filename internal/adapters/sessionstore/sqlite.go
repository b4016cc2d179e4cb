// Package sessionstore persists chat threads and their turn history.
// Clean Architecture: Adapter implementing ports.SessionStore on SQLite.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
)

// SQLiteStore implements ports.SessionStore with two tables:
// chat_sessions binds a thread to its asset, chat_history records turns
// in autoincrement order, which is the replay order.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the session database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to session db: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing session schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		chat_thread_id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_thread_id TEXT NOT NULL,
		user_message TEXT,
		bot_response TEXT,
		FOREIGN KEY (chat_thread_id) REFERENCES chat_sessions (chat_thread_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateThread binds a new thread ID to an asset.
func (s *SQLiteStore) CreateThread(ctx context.Context, threadID, assetID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (chat_thread_id, asset_id) VALUES (?, ?)`,
		threadID, assetID)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// AssetForThread resolves a thread to its bound asset.
func (s *SQLiteStore) AssetForThread(ctx context.Context, threadID string) (string, error) {
	var assetID string
	err := s.db.GetContext(ctx, &assetID,
		`SELECT asset_id FROM chat_sessions WHERE chat_thread_id = ?`, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ports.ErrUnknownThread, threadID)
	}
	if err != nil {
		return "", fmt.Errorf("querying session: %w", err)
	}
	return assetID, nil
}

// AppendTurn records one turn at the end of the thread's history.
func (s *SQLiteStore) AppendTurn(ctx context.Context, threadID string, turn entities.ChatTurn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (chat_thread_id, user_message, bot_response) VALUES (?, ?, ?)`,
		threadID, turn.UserMessage, turn.BotResponse)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// History returns the thread's turns in submission order.
// An unknown thread yields an empty history, mirroring the underlying
// query; callers that need existence semantics use AssetForThread.
func (s *SQLiteStore) History(ctx context.Context, threadID string) ([]entities.ChatTurn, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT user_message, bot_response FROM chat_history
		 WHERE chat_thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var turns []entities.ChatTurn
	for rows.Next() {
		var turn entities.ChatTurn
		if err := rows.Scan(&turn.UserMessage, &turn.BotResponse); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
