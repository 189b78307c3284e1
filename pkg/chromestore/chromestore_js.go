//go:build js && wasm
// +build js,wasm

package chromestore

import (
	"context"
	"fmt"
	"strings"
	"syscall/js"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Store calls chrome.bookmarks and relays its onChanged and onRemoved
// events to subscribers.
type Store struct {
	api       js.Value
	bus       *bookmarks.Broadcaster
	onChanged js.Func
	onRemoved js.Func
}

// New binds to chrome.bookmarks and starts listening for changes.
func New() (*Store, error) {
	chrome := js.Global().Get("chrome")
	if chrome.IsUndefined() || chrome.Get("bookmarks").IsUndefined() {
		return nil, ErrUnsupported
	}
	s := &Store{api: chrome.Get("bookmarks"), bus: bookmarks.NewBroadcaster()}

	// onChanged: (id, {title, url})
	s.onChanged = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 2 {
			return nil
		}
		s.bus.Publish(bookmarks.Event{
			Kind:  bookmarks.EventChanged,
			ID:    args[0].String(),
			Title: str(args[1].Get("title")),
			URL:   str(args[1].Get("url")),
		})
		return nil
	})
	// onRemoved: (id, {parentId, index, node})
	s.onRemoved = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) < 2 {
			return nil
		}
		ev := bookmarks.Event{
			Kind:     bookmarks.EventRemoved,
			ID:       args[0].String(),
			ParentID: str(args[1].Get("parentId")),
		}
		if node := args[1].Get("node"); node.Truthy() {
			ev.Title, ev.URL = str(node.Get("title")), str(node.Get("url"))
		}
		s.bus.Publish(ev)
		return nil
	})
	s.api.Get("onChanged").Call("addListener", s.onChanged)
	s.api.Get("onRemoved").Call("addListener", s.onRemoved)
	return s, nil
}

// Close removes the listeners and detaches subscribers.
func (s *Store) Close() error {
	s.api.Get("onChanged").Call("removeListener", s.onChanged)
	s.api.Get("onRemoved").Call("removeListener", s.onRemoved)
	s.onChanged.Release()
	s.onRemoved.Release()
	s.bus.Close()
	return nil
}

// Subscribe implements bookmarks.Store.
func (s *Store) Subscribe(ctx context.Context) <-chan bookmarks.Event {
	return s.bus.Subscribe(ctx)
}

// ListChildren implements bookmarks.Store.
func (s *Store) ListChildren(ctx context.Context, folderID string) ([]*bookmarks.Node, error) {
	v, err := s.await(ctx, "getChildren", folderID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folderID, err)
	}
	return nodes(v), nil
}

// CreateNode implements bookmarks.Store.
func (s *Store) CreateNode(ctx context.Context, parentID, title, url string) (*bookmarks.Node, error) {
	details := map[string]interface{}{"parentId": parentID, "title": title}
	if url != "" {
		details["url"] = url
	}
	v, err := s.await(ctx, "create", details)
	if err != nil {
		return nil, fmt.Errorf("create under %s: %w", parentID, err)
	}
	return node(v), nil
}

// MoveNode implements bookmarks.Store. Omitting the index appends.
func (s *Store) MoveNode(ctx context.Context, id, newParentID string) (*bookmarks.Node, error) {
	v, err := s.await(ctx, "move", id, map[string]interface{}{"parentId": newParentID})
	if err != nil {
		return nil, fmt.Errorf("move %s to %s: %w", id, newParentID, err)
	}
	return node(v), nil
}

// UpdateNode implements bookmarks.Store.
func (s *Store) UpdateNode(ctx context.Context, id, title string) (*bookmarks.Node, error) {
	v, err := s.await(ctx, "update", id, map[string]interface{}{"title": title})
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	return node(v), nil
}

// RemoveNode implements bookmarks.Store.
func (s *Store) RemoveNode(ctx context.Context, id string) error {
	if _, err := s.await(ctx, "removeTree", id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// SearchByTitlePrefix implements bookmarks.Store. chrome.bookmarks.search
// matches words anywhere in titles and urls, so the tree is walked instead.
func (s *Store) SearchByTitlePrefix(ctx context.Context, prefix string) ([]*bookmarks.Node, error) {
	v, err := s.await(ctx, "getTree")
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", prefix, err)
	}
	var out []*bookmarks.Node
	var walk func(js.Value)
	walk = func(n js.Value) {
		if title := str(n.Get("title")); n.Get("parentId").Truthy() && strings.HasPrefix(title, prefix) {
			out = append(out, node(n))
		}
		children := n.Get("children")
		if !children.Truthy() {
			return
		}
		for i := 0; i < children.Length(); i++ {
			walk(children.Index(i))
		}
	}
	for i := 0; i < v.Length(); i++ {
		walk(v.Index(i))
	}
	return out, nil
}

// await calls chrome.bookmarks[method] and blocks until its promise settles.
func (s *Store) await(ctx context.Context, method string, args ...interface{}) (js.Value, error) {
	type result struct {
		v   js.Value
		err error
	}
	resultCh := make(chan result, 2)

	then := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		var v js.Value
		if len(args) > 0 {
			v = args[0]
		}
		resultCh <- result{v: v}
		return nil
	})
	catch := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		msg := method + " failed"
		if len(args) > 0 && args[0].Truthy() {
			if m := args[0].Get("message"); m.Type() == js.TypeString {
				msg = m.String()
			}
		}
		resultCh <- result{err: classify(msg)}
		return nil
	})

	s.api.Call(method, args...).Call("then", then).Call("catch", catch)

	select {
	case r := <-resultCh:
		then.Release()
		catch.Release()
		return r.v, r.err
	case <-ctx.Done():
		// The callbacks must outlive the promise.
		go func() {
			<-resultCh
			then.Release()
			catch.Release()
		}()
		return js.Undefined(), ctx.Err()
	}
}

// classify maps chrome's error messages onto the store's sentinel errors.
func classify(msg string) error {
	switch {
	case strings.Contains(msg, "Can't find"):
		return fmt.Errorf("%s: %w", msg, bookmarks.ErrNotFound)
	case strings.Contains(msg, "Can't modify"), strings.Contains(msg, "Invalid"):
		return fmt.Errorf("%s: %w", msg, bookmarks.ErrInvalidNode)
	default:
		return fmt.Errorf("chrome.bookmarks: %s", msg)
	}
}

func node(v js.Value) *bookmarks.Node {
	n := &bookmarks.Node{
		ID:       str(v.Get("id")),
		ParentID: str(v.Get("parentId")),
		Title:    str(v.Get("title")),
		URL:      str(v.Get("url")),
	}
	if idx := v.Get("index"); idx.Type() == js.TypeNumber {
		n.Index = idx.Int()
	}
	return n
}

func nodes(v js.Value) []*bookmarks.Node {
	out := make([]*bookmarks.Node, 0, v.Length())
	for i := 0; i < v.Length(); i++ {
		out = append(out, node(v.Index(i)))
	}
	return out
}

// str returns "" for undefined and null.
func str(v js.Value) string {
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

var _ bookmarks.Store = (*Store)(nil)
