package switcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Reconciler repairs the registry and the store after edits made directly
// to the store: pointer edits, folder renames and removals.
//
// Handlers are not safe for concurrent use; Service runs them one at a
// time under its operation lock.
type Reconciler struct {
	store    bookmarks.Store
	registry *Registry
	engine   *Engine
	builder  *Builder
	opts     Options
	log      *zap.Logger
}

// NewReconciler wires a reconciler to the components it repairs.
func NewReconciler(store bookmarks.Store, registry *Registry, engine *Engine, builder *Builder, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		store:    store,
		registry: registry,
		engine:   engine,
		builder:  builder,
		opts:     opts,
		log:      opts.Logger.Named("reconciler"),
	}
}

// Handle reacts to a single store notification.
func (c *Reconciler) Handle(ctx context.Context, ev bookmarks.Event) error {
	if c.registry.RootID() == "" {
		return nil
	}
	switch ev.Kind {
	case bookmarks.EventRemoved:
		return c.handleRemoved(ctx, ev)
	case bookmarks.EventChanged:
		return c.handleChanged(ctx, ev)
	}
	return nil
}

func (c *Reconciler) handleRemoved(ctx context.Context, ev bookmarks.Event) error {
	switch {
	case ev.ID == c.registry.RootID():
		c.log.Warn("collections root removed, rebuilding", zap.String("id", ev.ID))
		c.opts.Metrics.reconciled("root_rebuilt")
		if err := c.builder.recoverRoot(ctx); err != nil {
			return fmt.Errorf("rebuild collections root: %w", err)
		}
		return c.refresh(ctx)

	case ev.ID == c.registry.PointerID():
		c.log.Info("pointer record removed, recreating", zap.String("id", ev.ID))
		c.opts.Metrics.reconciled("pointer_recreated")
		c.registry.ForgetPointer()
		return c.refresh(ctx)
	}

	name, ok := c.registry.FindName(ev.ID)
	if !ok {
		return nil
	}
	if name != c.registry.Current() {
		c.opts.Metrics.reconciled("folder_removed")
		c.log.Info("collection removed", zap.String("collection", name))
		return c.refresh(ctx)
	}

	// The current collection's items still live in the slot; only its
	// empty storage folder is gone.
	c.log.Warn("storage folder of current collection removed, recreating",
		zap.String("collection", name), zap.Error(ErrInconsistentState))
	c.opts.Metrics.reconciled("folder_recreated")
	if _, err := createCollection(ctx, c.store, c.registry, c.registry.RootID(), name); err != nil && !isValidation(err) {
		return fmt.Errorf("recreate folder %q: %w", name, err)
	}
	return c.refresh(ctx)
}

func (c *Reconciler) handleChanged(ctx context.Context, ev bookmarks.Event) error {
	if ev.ID == c.registry.PointerID() {
		return c.pointerChanged(ctx, ev.ID, ev.Title)
	}
	if old, ok := c.registry.FindName(ev.ID); ok {
		return c.folderRenamed(ctx, ev.ID, old, ev.Title)
	}
	return nil
}

// pointerChanged treats an edit of the pointer title as a switch request
// when it names another collection, and reverts anything else.
func (c *Reconciler) pointerChanged(ctx context.Context, id, title string) error {
	if c.registry.ConsumeEcho(id, title) {
		c.opts.Metrics.reconciled("echo")
		return nil
	}
	return c.settlePointer(ctx, id)
}

// settlePointer acts on the pointer's stored title rather than the title a
// notification carried, so a notification that arrives after the change was
// already handled is a no-op.
func (c *Reconciler) settlePointer(ctx context.Context, id string) error {
	title, ok, err := c.registry.PointerTitle(ctx, id)
	if err != nil || !ok {
		// A removed pointer gets its own notification.
		return err
	}

	current := c.registry.Current()
	if name, ok := c.opts.Codec.ParsePointer(title); ok && name != current {
		if _, known := c.registry.FindFolder(name); !known {
			// The collection may have been created by another client.
			if _, err := c.registry.Reload(ctx); err != nil {
				return err
			}
			c.registry.clearDrift()
		}
		if _, known := c.registry.FindFolder(name); known {
			applied, err := c.switchApplied(ctx, current, name)
			if err != nil {
				return err
			}
			if applied {
				c.log.Info("collection switched by another client, adopting",
					zap.String("from", current), zap.String("to", name))
				c.opts.Metrics.reconciled("pointer_adopted")
				if err := c.registry.SetCurrent(ctx, name); err != nil {
					return err
				}
				return c.registry.observeSlot(ctx)
			}

			c.log.Info("pointer edited, switching", zap.String("from", current), zap.String("to", name))
			c.opts.Metrics.reconciled("pointer_switch")
			err = c.engine.Select(ctx, name)
			if err == nil || c.registry.Current() == name {
				return err
			}
			// The switch never started; put the pointer back.
			if rerr := c.revertPointer(ctx, id, c.registry.Current()); rerr != nil {
				c.log.Warn("pointer revert failed", zap.Error(rerr))
			}
			return err
		}
	}

	if title == c.opts.Codec.Pointer(current) {
		return nil
	}
	c.log.Info("reverting pointer title", zap.String("title", title), zap.String("current", current))
	c.opts.Metrics.reconciled("pointer_reverted")
	return c.revertPointer(ctx, id, current)
}

// switchApplied reports whether the store already shows a switch from
// previous to target: the active slot holds target's items and previous's
// items sit in its storage folder. Another client sharing the store writes
// the pointer only after its moves are done.
func (c *Reconciler) switchApplied(ctx context.Context, previous, target string) (bool, error) {
	previousID, ok := c.registry.FindFolder(previous)
	if !ok {
		return false, nil
	}
	targetID, _ := c.registry.FindFolder(target)

	stored, err := c.store.ListChildren(ctx, targetID)
	if err != nil {
		return false, fmt.Errorf("list %q: %w", target, err)
	}
	if len(stored) > 0 {
		// Not imported yet.
		return false, nil
	}
	evacuated, err := c.store.ListChildren(ctx, previousID)
	if err != nil {
		return false, fmt.Errorf("list %q: %w", previous, err)
	}
	if len(evacuated) > 0 {
		// The current collection's folder is empty unless someone evacuated into it.
		return true, nil
	}

	// Both folders empty: either collection may be the empty one. Items the
	// slot held at the last observation belong to previous.
	slot, err := c.store.ListChildren(ctx, c.registry.SlotID())
	if err != nil {
		return false, fmt.Errorf("list active slot: %w", err)
	}
	return len(slot) == 0 || !c.registry.slotKnown(slot), nil
}

func (c *Reconciler) revertPointer(ctx context.Context, id, current string) error {
	want := c.opts.Codec.Pointer(current)
	c.registry.ExpectEcho(id, want)
	if _, err := c.store.UpdateNode(ctx, id, want); err != nil {
		c.registry.ConsumeEcho(id, want)
		return fmt.Errorf("revert pointer: %w", err)
	}
	return nil
}

// folderRenamed accepts a valid rename of a storage folder and reverts an
// invalid one to its last known name.
func (c *Reconciler) folderRenamed(ctx context.Context, id, old, title string) error {
	if c.registry.ConsumeEcho(id, title) {
		c.opts.Metrics.reconciled("echo")
		return nil
	}
	if title == old {
		return nil
	}

	if err := c.validateRename(id, title); err != nil {
		c.log.Info("rejected collection rename",
			zap.String("from", old), zap.String("to", title), zap.String("reason", err.Error()))
		c.opts.Metrics.reconciled("rename_reverted")
		c.registry.ExpectEcho(id, old)
		if _, err := c.store.UpdateNode(ctx, id, old); err != nil {
			c.registry.ConsumeEcho(id, old)
			return fmt.Errorf("revert rename of %q: %w", old, err)
		}
		return nil
	}

	c.log.Info("collection renamed", zap.String("from", old), zap.String("to", title))
	c.opts.Metrics.reconciled("renamed")
	if old == c.registry.Current() {
		if err := c.registry.SetCurrent(ctx, title); err != nil {
			return fmt.Errorf("rename current collection: %w", err)
		}
	}
	return c.refresh(ctx)
}

func (c *Reconciler) validateRename(id, title string) error {
	if err := validateName(c.opts.Codec, title); err != nil {
		return err
	}
	for _, f := range c.registry.Folders() {
		if f.ID != id && f.Name == title {
			return &ValidationError{Name: title, Reason: ReasonTaken}
		}
	}
	return nil
}

func (c *Reconciler) refresh(ctx context.Context) error {
	_, err := c.Refresh(ctx)
	return err
}

// Refresh reloads the registry. A pointer that changed since the previous
// reload is settled like a pointer edit before the snapshot is taken, so a
// reload racing the change notification never relabels the slot. Sweep
// failures are logged only.
func (c *Reconciler) Refresh(ctx context.Context) (*Snapshot, error) {
	snap, err := c.registry.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if name, ok := c.registry.Drift(); ok {
		c.registry.clearDrift()
		c.log.Debug("settling pointer change found by reload", zap.String("pointer", name))
		if err := c.settlePointer(ctx, c.registry.PointerID()); err != nil {
			return nil, err
		}
		if snap, err = c.registry.Reload(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.Sweep(ctx); err != nil {
		c.log.Warn("pointer sweep failed", zap.Error(err))
	}
	return snap, nil
}

// Sweep removes pointer records under the collections root other than the
// authoritative one. Pointer-titled folders are left alone since they may
// hold items.
func (c *Reconciler) Sweep(ctx context.Context) error {
	pointerID, rootID := c.registry.PointerID(), c.registry.RootID()
	if pointerID == "" || rootID == "" {
		return nil
	}
	defer c.registry.clearSurplus()

	nodes, err := c.store.SearchByTitlePrefix(ctx, c.opts.Codec.Prefix())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	for _, n := range nodes {
		if n.ParentID != rootID || n.ID == pointerID {
			continue
		}
		if _, ok := c.opts.Codec.ParsePointer(n.Title); !ok {
			continue
		}
		if n.IsFolder() {
			c.log.Warn("pointer-titled folder under collections root", zap.String("id", n.ID), zap.String("title", n.Title))
			continue
		}
		if err := c.store.RemoveNode(ctx, n.ID); err != nil {
			return fmt.Errorf("sweep %s: %w", n.ID, err)
		}
		c.opts.Metrics.reconciled("pointer_swept")
		c.log.Info("removed duplicate pointer", zap.String("id", n.ID), zap.String("title", n.Title))
	}
	return nil
}
