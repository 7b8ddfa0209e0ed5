package filequeue

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wittyreference/feature-factory/internal/model"
)

const createQueueTableSQL = `
CREATE TABLE IF NOT EXISTS work_items (
    id TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    consumed INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore is an optional durable backing store for the manual queue,
// for deployments that want the queue to survive outside a single JSON
// file (e.g. shared between multiple orchestrator processes on the same
// host). Grounded on v2/task/store.go's SQLTaskStore: one table, JSON
// payload column, driver imported for its side effect only.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a sqlite database at path and
// ensures the work_items table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("filequeue: open sqlite database: %w", err)
	}
	if _, err := db.Exec(createQueueTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("filequeue: create work_items table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load() ([]model.WorkItem, error) {
	rows, err := s.db.Query(`SELECT payload, consumed FROM work_items`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.WorkItem
	for rows.Next() {
		var payload string
		var consumed int
		if err := rows.Scan(&payload, &consumed); err != nil {
			return nil, err
		}
		var item model.WorkItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, err
		}
		item.Consumed = consumed != 0
		items = append(items, item)
	}
	return items, rows.Err()
}

// Save replaces every row's consumed flag and payload, inserting new
// items as needed. Run inside a transaction so a crash mid-write leaves
// the previous, fully-consistent table rather than a half-updated one.
func (s *SQLiteStore) Save(items []model.WorkItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return err
		}
		consumed := 0
		if item.Consumed {
			consumed = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO work_items (id, payload, consumed) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, consumed = excluded.consumed`,
			item.ID, string(payload), consumed,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
