//go:build !js && !wasm
// +build !js,!wasm

package chromestore

import (
	"context"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Store is a stub for non-WASM builds.
type Store struct{}

// New always fails outside the browser.
func New() (*Store, error) {
	return nil, ErrUnsupported
}

func (*Store) Close() error { return nil }

func (*Store) Subscribe(context.Context) <-chan bookmarks.Event {
	ch := make(chan bookmarks.Event)
	close(ch)
	return ch
}

func (*Store) ListChildren(context.Context, string) ([]*bookmarks.Node, error) {
	return nil, ErrUnsupported
}

func (*Store) CreateNode(context.Context, string, string, string) (*bookmarks.Node, error) {
	return nil, ErrUnsupported
}

func (*Store) MoveNode(context.Context, string, string) (*bookmarks.Node, error) {
	return nil, ErrUnsupported
}

func (*Store) UpdateNode(context.Context, string, string) (*bookmarks.Node, error) {
	return nil, ErrUnsupported
}

func (*Store) RemoveNode(context.Context, string) error { return ErrUnsupported }

func (*Store) SearchByTitlePrefix(context.Context, string) ([]*bookmarks.Node, error) {
	return nil, ErrUnsupported
}

var _ bookmarks.Store = (*Store)(nil)
