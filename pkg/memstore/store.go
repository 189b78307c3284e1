// Package memstore provides an in-memory host bookmark tree.
// It mirrors the layout browsers use: an invisible root holding the
// bookmarks bar and the "other bookmarks" folder.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Fixed folder ids created by New.
const (
	BarID   = "1"
	OtherID = "2"
)

// MoveHook runs before a move is applied. A non-nil error fails the move.
// Tests use it to inject latency and faults.
type MoveHook func(ctx context.Context, id, newParentID string) error

// Op records a completed mutation.
type Op struct {
	Kind     string // create, move, update, remove
	ID       string
	ParentID string
	Title    string
}

// Option configures a Store.
type Option func(*Store)

// WithMoveHook installs a hook run before every move.
func WithMoveHook(h MoveHook) Option {
	return func(s *Store) { s.moveHook = h }
}

// WithRootTitles overrides the titles of the two fixed folders.
func WithRootTitles(bar, other string) Option {
	return func(s *Store) {
		s.nodes[BarID].node.Title = bar
		s.nodes[OtherID].node.Title = other
	}
}

type entry struct {
	node     bookmarks.Node
	children []string
}

// Store is a thread-safe in-memory bookmarks.Store.
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]*entry
	ops      []Op
	moveHook MoveHook
	bus      *bookmarks.Broadcaster
}

// New creates a tree with the root, the bookmarks bar and "Other bookmarks".
func New(opts ...Option) *Store {
	s := &Store{
		nodes: make(map[string]*entry),
		bus:   bookmarks.NewBroadcaster(),
	}
	s.nodes[bookmarks.RootID] = &entry{
		node:     bookmarks.Node{ID: bookmarks.RootID},
		children: []string{BarID, OtherID},
	}
	s.nodes[BarID] = &entry{node: bookmarks.Node{ID: BarID, ParentID: bookmarks.RootID, Title: "Bookmarks bar"}}
	s.nodes[OtherID] = &entry{node: bookmarks.Node{ID: OtherID, ParentID: bookmarks.RootID, Title: "Other bookmarks", Index: 1}}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close detaches all subscribers.
func (s *Store) Close() error {
	s.bus.Close()
	return nil
}

// Subscribe implements bookmarks.Store.
func (s *Store) Subscribe(ctx context.Context) <-chan bookmarks.Event {
	return s.bus.Subscribe(ctx)
}

// Ops returns the completed mutations in completion order.
func (s *Store) Ops() []Op {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// ListChildren implements bookmarks.Store.
func (s *Store) ListChildren(ctx context.Context, folderID string) ([]*bookmarks.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.nodes[folderID]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", folderID, bookmarks.ErrNotFound)
	}
	out := make([]*bookmarks.Node, 0, len(e.children))
	for _, id := range e.children {
		out = append(out, s.copyNode(id))
	}
	return out, nil
}

// CreateNode implements bookmarks.Store.
func (s *Store) CreateNode(ctx context.Context, parentID, title, url string) (*bookmarks.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("create under %s: %w", parentID, bookmarks.ErrNotFound)
	}
	if parentID == bookmarks.RootID || !parent.node.IsFolder() {
		return nil, fmt.Errorf("create under %s: %w", parentID, bookmarks.ErrInvalidNode)
	}

	id := uuid.NewString()
	s.nodes[id] = &entry{node: bookmarks.Node{ID: id, ParentID: parentID, Title: title, URL: url}}
	parent.children = append(parent.children, id)
	s.ops = append(s.ops, Op{Kind: "create", ID: id, ParentID: parentID, Title: title})
	return s.copyNode(id), nil
}

// MoveNode implements bookmarks.Store.
func (s *Store) MoveNode(ctx context.Context, id, newParentID string) (*bookmarks.Node, error) {
	if s.moveHook != nil {
		if err := s.moveHook(ctx, id, newParentID); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("move %s: %w", id, bookmarks.ErrNotFound)
	}
	dst, ok := s.nodes[newParentID]
	if !ok {
		return nil, fmt.Errorf("move %s to %s: %w", id, newParentID, bookmarks.ErrNotFound)
	}
	if s.isFixed(id) || newParentID == bookmarks.RootID || !dst.node.IsFolder() || s.isAncestor(id, newParentID) {
		return nil, fmt.Errorf("move %s to %s: %w", id, newParentID, bookmarks.ErrInvalidNode)
	}

	src := s.nodes[e.node.ParentID]
	src.children = without(src.children, id)
	dst.children = append(dst.children, id)
	e.node.ParentID = newParentID
	s.ops = append(s.ops, Op{Kind: "move", ID: id, ParentID: newParentID, Title: e.node.Title})
	return s.copyNode(id), nil
}

// UpdateNode implements bookmarks.Store.
func (s *Store) UpdateNode(ctx context.Context, id, title string) (*bookmarks.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	e, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("update %s: %w", id, bookmarks.ErrNotFound)
	}
	if s.isFixed(id) {
		s.mu.Unlock()
		return nil, fmt.Errorf("update %s: %w", id, bookmarks.ErrInvalidNode)
	}
	e.node.Title = title
	s.ops = append(s.ops, Op{Kind: "update", ID: id, ParentID: e.node.ParentID, Title: title})
	n := s.copyNode(id)
	s.mu.Unlock()

	s.bus.Publish(bookmarks.Event{Kind: bookmarks.EventChanged, ID: id, ParentID: n.ParentID, Title: title, URL: n.URL})
	return n, nil
}

// RemoveNode implements bookmarks.Store.
func (s *Store) RemoveNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	e, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, bookmarks.ErrNotFound)
	}
	if s.isFixed(id) {
		s.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, bookmarks.ErrInvalidNode)
	}
	parent := s.nodes[e.node.ParentID]
	parent.children = without(parent.children, id)
	s.deleteTree(id)
	s.ops = append(s.ops, Op{Kind: "remove", ID: id, ParentID: e.node.ParentID, Title: e.node.Title})
	ev := bookmarks.Event{Kind: bookmarks.EventRemoved, ID: id, ParentID: e.node.ParentID, Title: e.node.Title, URL: e.node.URL}
	s.mu.Unlock()

	s.bus.Publish(ev)
	return nil
}

// SearchByTitlePrefix implements bookmarks.Store.
func (s *Store) SearchByTitlePrefix(ctx context.Context, prefix string) ([]*bookmarks.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*bookmarks.Node
	for id, e := range s.nodes {
		if s.isFixed(id) || !strings.HasPrefix(e.node.Title, prefix) {
			continue
		}
		out = append(out, s.copyNode(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// copyNode must be called with s.mu held.
func (s *Store) copyNode(id string) *bookmarks.Node {
	e := s.nodes[id]
	n := e.node
	if p, ok := s.nodes[n.ParentID]; ok {
		for i, c := range p.children {
			if c == id {
				n.Index = i
				break
			}
		}
	}
	return &n
}

func (s *Store) isFixed(id string) bool {
	return id == bookmarks.RootID || id == BarID || id == OtherID
}

// isAncestor reports whether id is newParentID or one of its ancestors.
func (s *Store) isAncestor(id, newParentID string) bool {
	for cur := newParentID; cur != ""; {
		if cur == id {
			return true
		}
		e, ok := s.nodes[cur]
		if !ok {
			return false
		}
		cur = e.node.ParentID
	}
	return false
}

func (s *Store) deleteTree(id string) {
	e, ok := s.nodes[id]
	if !ok {
		return
	}
	for _, c := range e.children {
		s.deleteTree(c)
	}
	delete(s.nodes, id)
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, c := range ids {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

var _ bookmarks.Store = (*Store)(nil)
