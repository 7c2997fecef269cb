package history

// SQLite persistence for the conversation log. Each save rewrites the whole
// conversation inside one transaction so the stored order always matches the
// in-memory log.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/jenesi-go/internal/logger"
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "history.db"
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
        conversation_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        id TEXT NOT NULL,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        is_streaming INTEGER NOT NULL DEFAULT 0,
        is_error INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (conversation_id, seq)
    );`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite table creation: %w", err)
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, content, created_at, is_streaming, is_error FROM messages WHERE conversation_id = ? ORDER BY seq ASC;`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m       Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &created, &m.IsStreaming, &m.IsError); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		m.Timestamp = time.UnixMilli(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, conversationID string, msgs []Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?;`, conversationID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages (conversation_id, seq, id, role, content, created_at, is_streaming, is_error) VALUES (?,?,?,?,?,?,?,?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, m := range msgs {
		if _, err := stmt.ExecContext(ctx, conversationID, i, m.ID, string(m.Role), m.Text, m.Timestamp.UnixMilli(), boolInt(m.IsStreaming), boolInt(m.IsError)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?;`, conversationID)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
