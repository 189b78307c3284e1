package switcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Builder discovers the host's fixed folders and the collections root,
// creating the root and a default collection on first run.
type Builder struct {
	store    bookmarks.Store
	registry *Registry
	opts     Options
	log      *zap.Logger
}

// NewBuilder creates a builder that populates registry.
func NewBuilder(store bookmarks.Store, registry *Registry, opts Options) *Builder {
	opts = opts.withDefaults()
	return &Builder{
		store:    store,
		registry: registry,
		opts:     opts,
		log:      opts.Logger.Named("bootstrap"),
	}
}

// Bootstrap locates the active slot and the collections root and seeds the
// registry. Any failure is wrapped in ErrStoreUnavailable.
func (b *Builder) Bootstrap(ctx context.Context) (rootID, slotID string, err error) {
	if rootID, slotID = b.registry.RootID(), b.registry.SlotID(); rootID != "" {
		return rootID, slotID, nil
	}

	slotID, otherID, err := b.locateFixedRoots(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	rootID, err = b.ensureRoot(ctx, otherID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	b.registry.setRoots(rootID, slotID)

	folders, err := b.folderNames(ctx, rootID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(folders) == 0 {
		b.log.Info("no collections found, creating default", zap.String("name", b.opts.DefaultName))
		if _, err := createCollection(ctx, b.store, b.registry, rootID, b.opts.DefaultName); err != nil {
			return "", "", fmt.Errorf("%w: create default collection: %w", ErrStoreUnavailable, err)
		}
		folders = append(folders, b.opts.DefaultName)
	}

	b.seedFromMirror(ctx, folders)
	b.log.Info("bootstrapped", zap.String("root", rootID), zap.String("slot", slotID), zap.Int("collections", len(folders)))
	return rootID, slotID, nil
}

// locateFixedRoots finds the bookmarks bar and the "other bookmarks" folder
// by title, falling back to their position under the tree root.
func (b *Builder) locateFixedRoots(ctx context.Context) (slotID, otherID string, err error) {
	children, err := b.store.ListChildren(ctx, bookmarks.RootID)
	if err != nil {
		return "", "", fmt.Errorf("list tree root: %w", err)
	}

	slotID = findTitled(children, b.opts.BarTitles)
	otherID = findTitled(children, b.opts.OtherTitles)
	if slotID == "" && len(children) > 0 {
		slotID = children[0].ID
	}
	if otherID == "" && len(children) > 1 {
		otherID = children[1].ID
	}
	if slotID == "" || otherID == "" || slotID == otherID {
		return "", "", fmt.Errorf("host folders not found among %d root children", len(children))
	}
	return slotID, otherID, nil
}

// ensureRoot returns the collections root under otherID, creating it if absent.
func (b *Builder) ensureRoot(ctx context.Context, otherID string) (string, error) {
	children, err := b.store.ListChildren(ctx, otherID)
	if err != nil {
		return "", fmt.Errorf("list other bookmarks: %w", err)
	}
	for _, c := range children {
		if c.IsFolder() && c.Title == b.opts.RootTitle {
			return c.ID, nil
		}
	}

	n, err := b.store.CreateNode(ctx, otherID, b.opts.RootTitle, "")
	if err != nil {
		return "", fmt.Errorf("create collections root: %w", err)
	}
	b.log.Info("created collections root", zap.String("id", n.ID), zap.String("title", b.opts.RootTitle))
	return n.ID, nil
}

// recoverRoot rebuilds the collections root after it was removed out of
// band. The current collection's items are still in the slot, so only its
// empty storage folder is recreated.
func (b *Builder) recoverRoot(ctx context.Context) error {
	_, otherID, err := b.locateFixedRoots(ctx)
	if err != nil {
		return err
	}
	rootID, err := b.ensureRoot(ctx, otherID)
	if err != nil {
		return err
	}
	b.registry.setRoots(rootID, b.registry.SlotID())
	b.registry.ForgetPointer()

	current := b.registry.Current()
	if _, err := createCollection(ctx, b.store, b.registry, rootID, current); err != nil && !isValidation(err) {
		return err
	}
	return nil
}

func (b *Builder) folderNames(ctx context.Context, rootID string) ([]string, error) {
	children, err := b.store.ListChildren(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("list collections root: %w", err)
	}
	var names []string
	for _, e := range b.registry.Classify(children) {
		if e.Kind == EntryFolder {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// seedFromMirror adopts the mirrored current name when it names an existing
// collection. It only matters when the pointer record is missing.
func (b *Builder) seedFromMirror(ctx context.Context, folders []string) {
	name, ok, err := b.opts.Mirror.Current(ctx)
	if err != nil {
		b.log.Debug("mirror unavailable", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	for _, f := range folders {
		if f == name {
			b.registry.seedCurrent(name)
			return
		}
	}
	b.log.Debug("ignoring mirrored current name", zap.String("name", name))
}

func findTitled(nodes []*bookmarks.Node, titles []string) string {
	for _, n := range nodes {
		if !n.IsFolder() {
			continue
		}
		for _, t := range titles {
			if n.Title == t {
				return n.ID
			}
		}
	}
	return ""
}
