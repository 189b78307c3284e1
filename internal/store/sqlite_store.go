package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Fixed folder ids seeded into every database.
const (
	BarID   = "1"
	OtherID = "2"
)

const (
	defaultRetention = 1024
	drainBatch       = 256
)

// SQLiteStore is the SQLite-backed bookmark tree.
// Thread-safe; notifications are published from a single pump goroutine.
type SQLiteStore struct {
	mu  sync.RWMutex
	db  *sql.DB
	log *zap.Logger
	bus *bookmarks.Broadcaster

	path      string
	retention int
	poll      time.Duration
	cursor    int64

	kick      chan struct{}
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SQLiteStore) { s.log = l }
}

// WithJournalRetention keeps the newest n journal rows.
func WithJournalRetention(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithPollInterval re-reads the journal every d even without a file
// event. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *SQLiteStore) { s.poll = d }
}

// schema defines the tree, the change journal and the key/value table.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    parent_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, position);
CREATE INDEX IF NOT EXISTS idx_nodes_title ON nodes(title);

-- Change journal, appended by triggers for every connection
CREATE TABLE IF NOT EXISTS node_events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    node_id TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT ''
);

CREATE TRIGGER IF NOT EXISTS trg_nodes_title AFTER UPDATE OF title ON nodes
BEGIN
    INSERT INTO node_events (kind, node_id, parent_id, title, url)
    VALUES ('changed', NEW.id, NEW.parent_id, NEW.title, NEW.url);
END;

-- Only the top of a removed subtree is journaled: descendants are deleted
-- after their parent is already gone.
CREATE TRIGGER IF NOT EXISTS trg_nodes_delete AFTER DELETE ON nodes
WHEN EXISTS (SELECT 1 FROM nodes WHERE id = OLD.parent_id)
BEGIN
    INSERT INTO node_events (kind, node_id, parent_id, title, url)
    VALUES ('removed', OLD.id, OLD.parent_id, OLD.title, OLD.url);
END;

CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// NewSQLiteStore creates an in-memory store.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:", opts...)
}

// Open creates a store backed by the database file at path and watches it
// for edits made by other processes.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	dsn := "file:" + filepath.ToSlash(abs) + "?_pragma=busy_timeout(5000)"
	opts = append([]Option{func(s *SQLiteStore) { s.path = abs }}, opts...)
	return NewSQLiteStoreWithDSN(dsn, opts...)
}

// NewSQLiteStoreWithDSN creates a store with a custom DSN.
func NewSQLiteStoreWithDSN(dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	// Create schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		log:       zap.NewNop(),
		bus:       bookmarks.NewBroadcaster(),
		retention: defaultRetention,
		kick:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.seed(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM node_events`).Scan(&s.cursor); err != nil {
		db.Close()
		return nil, fmt.Errorf("read journal cursor: %w", err)
	}

	if s.path != "" {
		if err := s.watch(); err != nil {
			s.log.Warn("file watch unavailable, relying on polling", zap.String("path", s.path), zap.Error(err))
		}
	}
	go s.pump()
	return s, nil
}

// seed inserts the invisible root and the two fixed folders.
func (s *SQLiteStore) seed() error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO nodes (id, parent_id, title, url, position, created_at, updated_at) VALUES
			(?, '', '', '', 0, ?, ?),
			(?, ?, 'Bookmarks bar', '', 0, ?, ?),
			(?, ?, 'Other bookmarks', '', 1, ?, ?)
	`, bookmarks.RootID, now, now,
		BarID, bookmarks.RootID, now, now,
		OtherID, bookmarks.RootID, now, now)
	if err != nil {
		return fmt.Errorf("seed fixed folders: %w", err)
	}
	return nil
}

func (s *SQLiteStore) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	return nil
}

// Close stops the pump, detaches subscribers and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		if s.watcher != nil {
			s.watcher.Close()
		}
		s.bus.Close()

		s.mu.Lock()
		defer s.mu.Unlock()
		err = s.db.Close()
	})
	return err
}

// Subscribe implements bookmarks.Store.
func (s *SQLiteStore) Subscribe(ctx context.Context) <-chan bookmarks.Event {
	return s.bus.Subscribe(ctx)
}

// =============================================================================
// Tree operations
// =============================================================================

const nodeColumns = `id, parent_id, title, url,
	(SELECT COUNT(*) FROM nodes s WHERE s.parent_id = n.parent_id AND s.position < n.position)`

func scanNode(row interface{ Scan(...any) error }) (*bookmarks.Node, error) {
	var n bookmarks.Node
	if err := row.Scan(&n.ID, &n.ParentID, &n.Title, &n.URL, &n.Index); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *SQLiteStore) getNode(ctx context.Context, q queryer, id string) (*bookmarks.Node, error) {
	n, err := scanNode(q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes n WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, bookmarks.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	return n, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isFixed(id string) bool {
	return id == bookmarks.RootID || id == BarID || id == OtherID
}

// ListChildren implements bookmarks.Store.
func (s *SQLiteStore) ListChildren(ctx context.Context, folderID string) ([]*bookmarks.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getNode(ctx, s.db, folderID); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, title, url FROM nodes
		WHERE parent_id = ? AND id != ?
		ORDER BY position, rowid
	`, folderID, bookmarks.RootID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folderID, err)
	}
	defer rows.Close()

	var out []*bookmarks.Node
	for rows.Next() {
		var n bookmarks.Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Title, &n.URL); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Index = len(out)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// CreateNode implements bookmarks.Store.
func (s *SQLiteStore) CreateNode(ctx context.Context, parentID, title, url string) (*bookmarks.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.getNode(ctx, s.db, parentID)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	if parentID == bookmarks.RootID || !parent.IsFolder() {
		return nil, fmt.Errorf("create under %s: %w", parentID, bookmarks.ErrInvalidNode)
	}

	id := uuid.NewString()
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, parent_id, title, url, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM nodes WHERE parent_id = ?), ?, ?)
	`, id, parentID, title, url, parentID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create under %s: %w", parentID, err)
	}
	return s.getNode(ctx, s.db, id)
}

// MoveNode implements bookmarks.Store. The node is appended to newParentID.
func (s *SQLiteStore) MoveNode(ctx context.Context, id, newParentID string) (*bookmarks.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getNode(ctx, s.db, id); err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}
	dst, err := s.getNode(ctx, s.db, newParentID)
	if err != nil {
		return nil, fmt.Errorf("move %s: %w", id, err)
	}
	if isFixed(id) || newParentID == bookmarks.RootID || !dst.IsFolder() {
		return nil, fmt.Errorf("move %s to %s: %w", id, newParentID, bookmarks.ErrInvalidNode)
	}
	cycle, err := s.isAncestor(ctx, id, newParentID)
	if err != nil {
		return nil, fmt.Errorf("move %s: %w", id, err)
	}
	if cycle {
		return nil, fmt.Errorf("move %s into its own subtree: %w", id, bookmarks.ErrInvalidNode)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE nodes SET
			parent_id = ?,
			position = (SELECT COALESCE(MAX(position), -1) + 1 FROM nodes WHERE parent_id = ?),
			updated_at = ?
		WHERE id = ?
	`, newParentID, newParentID, time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("move %s to %s: %w", id, newParentID, err)
	}
	return s.getNode(ctx, s.db, id)
}

// isAncestor reports whether id is newParentID or one of its ancestors.
func (s *SQLiteStore) isAncestor(ctx context.Context, id, newParentID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE anc(id, parent_id) AS (
			SELECT id, parent_id FROM nodes WHERE id = ?
			UNION ALL
			SELECT n.id, n.parent_id FROM nodes n JOIN anc ON n.id = anc.parent_id
		)
		SELECT COUNT(*) FROM anc WHERE id = ?
	`, newParentID, id).Scan(&found)
	return found > 0, err
}

// UpdateNode implements bookmarks.Store.
func (s *SQLiteStore) UpdateNode(ctx context.Context, id, title string) (*bookmarks.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isFixed(id) {
		return nil, fmt.Errorf("update %s: %w", id, bookmarks.ErrInvalidNode)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE nodes SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().Unix(), id)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("update %s: %w", id, bookmarks.ErrNotFound)
	}
	s.notify()
	return s.getNode(ctx, s.db, id)
}

// RemoveNode implements bookmarks.Store. The subtree is deleted top-down so
// the journal records a single removal.
func (s *SQLiteStore) RemoveNode(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isFixed(id) {
		return fmt.Errorf("remove %s: %w", id, bookmarks.ErrInvalidNode)
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE sub(id, depth) AS (
			SELECT id, 0 FROM nodes WHERE id = ?
			UNION ALL
			SELECT n.id, sub.depth + 1 FROM nodes n JOIN sub ON n.parent_id = sub.id
		)
		SELECT id FROM sub ORDER BY depth
	`, id)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	var ids []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			rows.Close()
			return fmt.Errorf("remove %s: %w", id, err)
		}
		ids = append(ids, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("remove %s: %w", id, bookmarks.ErrNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	defer tx.Rollback()
	for _, c := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, c); err != nil {
			return fmt.Errorf("remove %s: %w", c, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remove %s: commit: %w", id, err)
	}
	s.notify()
	return nil
}

// SearchByTitlePrefix implements bookmarks.Store.
func (s *SQLiteStore) SearchByTitlePrefix(ctx context.Context, prefix string) ([]*bookmarks.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, title, url FROM nodes
		WHERE substr(title, 1, length(?)) = ? AND id NOT IN (?, ?, ?)
		ORDER BY id
	`, prefix, prefix, bookmarks.RootID, BarID, OtherID)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []*bookmarks.Node
	for rows.Next() {
		var n bookmarks.Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Title, &n.URL); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// =============================================================================
// Journal pump
// =============================================================================

// notify wakes the pump without blocking.
func (s *SQLiteStore) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *SQLiteStore) pump() {
	defer close(s.doneCh)

	var (
		fsEvents <-chan fsnotify.Event
		fsErrors <-chan error
		tick     <-chan time.Time
	)
	if s.watcher != nil {
		fsEvents, fsErrors = s.watcher.Events, s.watcher.Errors
	}
	if s.poll > 0 {
		t := time.NewTicker(s.poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.kick:
			s.drain()
		case <-tick:
			s.drain()
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if s.isDatabaseFile(ev.Name) && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.drain()
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			s.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

// isDatabaseFile matches the database and its -journal / -wal companions.
func (s *SQLiteStore) isDatabaseFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), filepath.Base(s.path))
}

// drain publishes journal rows past the cursor, then prunes old rows.
func (s *SQLiteStore) drain() {
	for {
		entries, err := s.readJournal(s.cursor, drainBatch)
		if err != nil {
			s.log.Warn("journal read failed", zap.Error(err))
			return
		}
		if len(entries) == 0 {
			break
		}
		events := make([]bookmarks.Event, len(entries))
		for i, e := range entries {
			events[i] = e.Event()
		}
		s.cursor = entries[len(entries)-1].Seq
		s.bus.Publish(events...)
		if len(entries) < drainBatch {
			break
		}
	}
	s.prune()
}

func (s *SQLiteStore) readJournal(after int64, limit int) ([]JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT seq, kind, node_id, parent_id, title, url FROM node_events
		WHERE seq > ? ORDER BY seq LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.Seq, &e.Kind, &e.NodeID, &e.ParentID, &e.Title, &e.URL); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		DELETE FROM node_events WHERE seq <= (SELECT MAX(seq) FROM node_events) - ?
	`, s.retention); err != nil {
		s.log.Debug("journal prune failed", zap.Error(err))
	}
}

// =============================================================================
// Key/value
// =============================================================================

// GetKV returns the value stored under key.
func (s *SQLiteStore) GetKV(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

// SetKV stores value under key.
func (s *SQLiteStore) SetKV(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// =============================================================================
// Export / Import
// =============================================================================

// Export serializes the tree and the key/value table to JSON bytes.
// The journal is not exported.
func (s *SQLiteStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := ExportData{KV: make(map[string]string)}

	rows, err := s.db.Query(`
		SELECT id, parent_id, title, url, position, created_at, updated_at
		FROM nodes ORDER BY parent_id, position, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("export nodes: %w", err)
	}
	for rows.Next() {
		var n NodeRow
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Title, &n.URL, &n.Position, &n.CreatedAt, &n.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node: %w", err)
		}
		data.Nodes = append(data.Nodes, &n)
	}
	rows.Close()

	kvRows, err := s.db.Query(`SELECT key, value FROM kv`)
	if err != nil {
		return nil, fmt.Errorf("export kv: %w", err)
	}
	defer kvRows.Close()
	for kvRows.Next() {
		var k, v string
		if err := kvRows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		data.KV[k] = v
	}
	if err := kvRows.Err(); err != nil {
		return nil, err
	}

	return json.Marshal(data)
}

// Import replaces the tree and the key/value table with an export.
// Journal rows written while clearing are skipped, so subscribers see no
// notifications for the restore.
func (s *SQLiteStore) Import(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var importData ExportData
	if err := json.Unmarshal(data, &importData); err != nil {
		return fmt.Errorf("import unmarshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"nodes", "kv"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, n := range importData.Nodes {
		_, err := tx.Exec(`
			INSERT INTO nodes (id, parent_id, title, url, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.ParentID, n.Title, n.URL, n.Position, n.CreatedAt, n.UpdatedAt)
		if err != nil {
			return fmt.Errorf("import node %s: %w", n.ID, err)
		}
	}
	for k, v := range importData.KV {
		if _, err := tx.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("import kv %s: %w", k, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM node_events`); err != nil {
		return fmt.Errorf("clear journal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import commit: %w", err)
	}

	if err := s.seed(); err != nil {
		return err
	}
	return nil
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
