package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const documentName = "settings"

// SQLiteBackend keeps the document as one row of a local SQLite database.
type SQLiteBackend struct {
	conn *sqlite.Conn
	mu   sync.Mutex
}

// NewSQLiteBackend opens or creates the database at path and ensures the table exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite|sqlite.OpenWAL)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	err = sqlitex.ExecuteTransient(conn, `
		CREATE TABLE IF NOT EXISTS settings_documents (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteBackend{conn: conn}, nil
}

func (b *SQLiteBackend) Load(ctx context.Context) (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conn.SetInterrupt(ctx.Done())
	defer b.conn.SetInterrupt(nil)

	var body string

	err := sqlitex.Execute(b.conn, "SELECT body FROM settings_documents WHERE name = ?", &sqlitex.ExecOptions{
		Args: []any{documentName},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			body = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read settings document: %w", err)
	}

	return Decode([]byte(body))
}

func (b *SQLiteBackend) Save(ctx context.Context, doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.conn.SetInterrupt(ctx.Done())
	defer b.conn.SetInterrupt(nil)

	err = sqlitex.Execute(b.conn, `
		INSERT INTO settings_documents (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, &sqlitex.ExecOptions{
		Args: []any{documentName, string(data), time.Now().Unix()},
	})
	if err != nil {
		return fmt.Errorf("failed to write settings document: %w", err)
	}

	return nil
}

func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.conn.Close()
}
