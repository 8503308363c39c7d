package cache

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists cache entries in a SQLite database. Multiple
// caches share one file, separated by namespace.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// NewSQLiteStore opens (or creates) the database at dbPath and scopes all
// operations to namespace.
func NewSQLiteStore(dbPath, namespace string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db, namespace: namespace}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS cache_entries (
        namespace TEXT NOT NULL,
        account_id TEXT NOT NULL,
        value TEXT NOT NULL,
        issued_at INTEGER NOT NULL,
        expires_at INTEGER NOT NULL,
        PRIMARY KEY (namespace, account_id)
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load reads all entries in this store's namespace.
func (s *SQLiteStore) Load() (map[string]Entry, error) {
	rows, err := s.db.Query(`
        SELECT account_id, value, issued_at, expires_at
        FROM cache_entries
        WHERE namespace = ?
    `, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Entry)
	for rows.Next() {
		var accountID, value string
		var issuedAt, expiresAt int64
		if err := rows.Scan(&accountID, &value, &issuedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		entries[accountID] = Entry{
			Value:     value,
			IssuedAt:  time.Unix(0, issuedAt),
			ExpiresAt: time.Unix(0, expiresAt),
		}
	}

	return entries, rows.Err()
}

// Save replaces the namespace's persisted entry set in one transaction.
func (s *SQLiteStore) Save(entries map[string]Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM cache_entries WHERE namespace = ?", s.namespace); err != nil {
		return fmt.Errorf("delete old entries: %w", err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO cache_entries (namespace, account_id, value, issued_at, expires_at)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for accountID, entry := range entries {
		_, err := stmt.Exec(s.namespace, accountID, entry.Value,
			entry.IssuedAt.UnixNano(), entry.ExpiresAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", accountID, err)
		}
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
