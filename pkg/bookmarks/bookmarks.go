// Package bookmarks defines the capability surface of a host bookmark store:
// a folder tree with individually asynchronous create/list/move/update/remove
// operations and change notifications. Implementations live in memstore,
// chromestore and internal/store.
package bookmarks

import (
	"context"
	"errors"
)

// RootID is the id of the invisible tree root holding the host's fixed folders.
const RootID = "0"

var (
	// ErrNotFound is returned when a node id does not exist.
	ErrNotFound = errors.New("bookmarks: node not found")
	// ErrInvalidNode is returned for structurally invalid requests
	// (moving a node under itself, creating under a bookmark, touching the root).
	ErrInvalidNode = errors.New("bookmarks: invalid node operation")
)

// Node is a folder or a bookmark. Folders have no URL.
type Node struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Index    int    `json:"index"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.URL == ""
}

// EventKind distinguishes change notifications.
type EventKind int

const (
	EventChanged EventKind = iota + 1
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is a change notification. Title and URL carry the new values for
// EventChanged and the last values for EventRemoved.
type Event struct {
	Kind     EventKind `json:"kind"`
	ID       string    `json:"id"`
	ParentID string    `json:"parentId,omitempty"`
	Title    string    `json:"title,omitempty"`
	URL      string    `json:"url,omitempty"`
}

// Store is the host store. Calls are independent: no ordering is promised
// between two calls that were not sequenced by the caller. Notifications are
// delivered asynchronously and include the caller's own writes.
type Store interface {
	ListChildren(ctx context.Context, folderID string) ([]*Node, error)
	CreateNode(ctx context.Context, parentID, title, url string) (*Node, error)
	// MoveNode appends the node to the end of newParentID.
	MoveNode(ctx context.Context, id, newParentID string) (*Node, error)
	UpdateNode(ctx context.Context, id, title string) (*Node, error)
	// RemoveNode removes the node and, for folders, its whole subtree.
	RemoveNode(ctx context.Context, id string) error
	SearchByTitlePrefix(ctx context.Context, prefix string) ([]*Node, error)
	// Subscribe returns a channel of notifications that is closed when ctx
	// is done or the store is closed.
	Subscribe(ctx context.Context) <-chan Event
}
