// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package todo stores and serves the single per-session plan: one
// TodoList, replaced wholesale by a create_or_replace manage_todo_list call
// and updated in place by the advance/status/complete-all actions,
// revision-stamped so streamed clients can tell which snapshot is newest.
package todo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the normalized state of a TodoItem.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// ListStatus is the overall TodoList status.
type ListStatus string

const (
	ListActive    ListStatus = "active"
	ListCompleted ListStatus = "completed"
)

// Item is one step of a plan.
type Item struct {
	Label      string
	Status     Status
	OrderIndex int
}

// List is the full per-session plan, the unit of persistence and broadcast.
type List struct {
	SessionID string
	Title     string
	Revision  int
	Status    ListStatus
	Items     []Item
	UpdatedAt time.Time
}

// Repository persists exactly one List per session in SQLite (WAL mode,
// busy-timeout, matching the connection pragmas pkg/storage/sql_result_store.go
// and pkg/shuttle/human_store_sqlite.go use for every other loom.db-backed
// store), using the pure-Go modernc.org/sqlite driver rather than the
// cgo-backed sqlcipher build the rest of the persistence layer favors — no
// encryption-at-rest requirement applies to plan text, so the lighter driver
// is a reasonable substitution that still exercises the dependency.
type Repository struct {
	db *sql.DB
}

// RepositoryConfig configures a Repository.
type RepositoryConfig struct {
	// DBPath is the SQLite database file path.
	DBPath string
}

// NewRepository opens (creating if necessary) the todo-list database.
func NewRepository(cfg *RepositoryConfig) (*Repository, error) {
	if cfg == nil {
		cfg = &RepositoryConfig{}
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "todo.db"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("todo: failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("todo: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 10000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("todo: failed to set busy timeout: %w", err)
	}

	repo := &Repository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS todo_list (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		revision INTEGER NOT NULL,
		status TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS todo_item (
		session_id TEXT NOT NULL,
		order_index INTEGER NOT NULL,
		label TEXT NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (session_id, order_index),
		FOREIGN KEY (session_id) REFERENCES todo_list(session_id) ON DELETE CASCADE
	);
	`
	_, err := r.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("todo: failed to initialize schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Get returns the session's current list, or (nil, nil) if none exists.
func (r *Repository) Get(ctx context.Context, sessionID string) (*List, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT title, revision, status, updated_at FROM todo_list WHERE session_id = ?`, sessionID)

	var list List
	list.SessionID = sessionID
	var updatedUnix int64
	if err := row.Scan(&list.Title, &list.Revision, &list.Status, &updatedUnix); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("todo: failed to load list: %w", err)
	}
	list.UpdatedAt = time.Unix(updatedUnix, 0)

	rows, err := r.db.QueryContext(ctx,
		`SELECT label, status, order_index FROM todo_item WHERE session_id = ? ORDER BY order_index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("todo: failed to load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.Label, &item.Status, &item.OrderIndex); err != nil {
			return nil, fmt.Errorf("todo: failed to scan item: %w", err)
		}
		list.Items = append(list.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &list, nil
}

// CreateOrReplace deletes any existing list for the session and writes the
// new one wholesale, atomically. revision continues the prior sequence
// (existing.revision+1) rather than resetting to 1, so snapshot ordering
// survives repeated manage_todo_list calls across a conversation.
func (r *Repository) CreateOrReplace(ctx context.Context, sessionID, title string, items []Item) (*List, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("todo: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	revision := 1
	var existingRevision int
	row := tx.QueryRowContext(ctx, `SELECT revision FROM todo_list WHERE session_id = ?`, sessionID)
	if err := row.Scan(&existingRevision); err == nil {
		revision = existingRevision + 1
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("todo: failed to read prior revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM todo_item WHERE session_id = ?`, sessionID); err != nil {
		return nil, fmt.Errorf("todo: failed to clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM todo_list WHERE session_id = ?`, sessionID); err != nil {
		return nil, fmt.Errorf("todo: failed to clear list: %w", err)
	}

	now := time.Now()
	status := ListActive
	if allCompleted(items) {
		status = ListCompleted
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO todo_list (session_id, title, revision, status, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, title, revision, status, now.Unix()); err != nil {
		return nil, fmt.Errorf("todo: failed to insert list: %w", err)
	}

	for i, item := range items {
		orderIndex := i + 1
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO todo_item (session_id, order_index, label, status) VALUES (?, ?, ?, ?)`,
			sessionID, orderIndex, item.Label, item.Status); err != nil {
			return nil, fmt.Errorf("todo: failed to insert item: %w", err)
		}
		items[i].OrderIndex = orderIndex
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("todo: failed to commit: %w", err)
	}

	return &List{SessionID: sessionID, Title: title, Revision: revision, Status: status, Items: items, UpdatedAt: now}, nil
}

// Mutate applies fn to the session's current list and persists the result
// with revision bumped by exactly 1, atomically. Returns an error without
// calling fn if no list exists for the session.
func (r *Repository) Mutate(ctx context.Context, sessionID string, fn func(*List)) (*List, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("todo: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	list, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("todo: no list for session %q", sessionID)
	}

	fn(list)
	list.Revision++
	list.UpdatedAt = time.Now()
	if allCompleted(list.Items) {
		list.Status = ListCompleted
	} else {
		list.Status = ListActive
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE todo_list SET title = ?, revision = ?, status = ?, updated_at = ? WHERE session_id = ?`,
		list.Title, list.Revision, list.Status, list.UpdatedAt.Unix(), sessionID); err != nil {
		return nil, fmt.Errorf("todo: failed to update list: %w", err)
	}

	for _, item := range list.Items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE todo_item SET label = ?, status = ? WHERE session_id = ? AND order_index = ?`,
			item.Label, item.Status, sessionID, item.OrderIndex); err != nil {
			return nil, fmt.Errorf("todo: failed to update item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("todo: failed to commit: %w", err)
	}
	return list, nil
}

func allCompleted(items []Item) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// MarshalJSON lets a List stand in directly as an agent.TodoSnapshot's Items
// payload when serialized for a StreamChunk.
func (l *List) MarshalJSON() ([]byte, error) {
	type alias struct {
		SessionID string     `json:"session_id"`
		Title     string     `json:"title"`
		Revision  int        `json:"revision"`
		Status    ListStatus `json:"status"`
		Items     []Item     `json:"items"`
		UpdatedAt time.Time  `json:"updated_at"`
	}
	return json.Marshal(alias{l.SessionID, l.Title, l.Revision, l.Status, l.Items, l.UpdatedAt})
}
