// Package store provides a SQLite-backed host bookmark tree.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package store

import (
	"context"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// NodeRow is a row of the nodes table.
type NodeRow struct {
	ID        string `json:"id"`
	ParentID  string `json:"parentId"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Position  int64  `json:"position"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// JournalEntry is a row of the node_events table. Rows are written by
// triggers, so edits made by any connection to the file are recorded.
type JournalEntry struct {
	Seq      int64
	Kind     string // "changed" | "removed"
	NodeID   string
	ParentID string
	Title    string
	URL      string
}

// Event converts the row into a store notification.
func (j JournalEntry) Event() bookmarks.Event {
	kind := bookmarks.EventChanged
	if j.Kind == "removed" {
		kind = bookmarks.EventRemoved
	}
	return bookmarks.Event{Kind: kind, ID: j.NodeID, ParentID: j.ParentID, Title: j.Title, URL: j.URL}
}

// ExportData is the portable JSON form of the whole database.
type ExportData struct {
	Nodes []*NodeRow        `json:"nodes"`
	KV    map[string]string `json:"kv"`
}

// Storer defines the interface for bookmark persistence.
// SQLiteStore is the sole implementation.
type Storer interface {
	bookmarks.Store

	// Key/value side table
	GetKV(ctx context.Context, key string) (string, bool, error)
	SetKV(ctx context.Context, key, value string) error

	// Backup
	Export() ([]byte, error)
	Import(data []byte) error

	Close() error
}
