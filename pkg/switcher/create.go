package switcher

import (
	"context"
	"fmt"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
	"github.com/kittclouds/barswitch/pkg/titles"
)

// validateName checks the rules that need no store access.
func validateName(codec *titles.Codec, name string) error {
	if name == "" {
		return &ValidationError{Name: name, Reason: ReasonEmpty}
	}
	if tok, ok := codec.Reserved(name); ok {
		return &ValidationError{Name: name, Reason: reservedReason(tok)}
	}
	return nil
}

// createCollection validates name against a fresh listing of rootID and
// creates its storage folder. No store mutation happens on rejection.
func createCollection(ctx context.Context, store bookmarks.Store, r *Registry, rootID, name string) (*bookmarks.Node, error) {
	if err := validateName(r.opts.Codec, name); err != nil {
		return nil, err
	}

	children, err := store.ListChildren(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("create %q: list collections root: %w", name, err)
	}
	for _, e := range r.Classify(children) {
		if e.Kind == EntryFolder && e.Name == name {
			return nil, &ValidationError{Name: name, Reason: ReasonTaken}
		}
	}

	n, err := store.CreateNode(ctx, rootID, name, "")
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	return n, nil
}
