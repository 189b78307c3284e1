package switcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Engine swaps the active slot's contents with a collection's storage folder.
type Engine struct {
	store    bookmarks.Store
	registry *Registry
	opts     Options
	log      *zap.Logger
}

// NewEngine creates a switch engine over registry.
func NewEngine(store bookmarks.Store, registry *Registry, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		store:    store,
		registry: registry,
		opts:     opts,
		log:      opts.Logger.Named("engine"),
	}
}

// Select makes target the current collection. Selecting the current
// collection is a no-op: moving the slot onto itself would empty it.
//
// The active slot is evacuated into the previous collection's folder and
// every move is acknowledged before the import batch is issued, so a
// still-running evacuation can never sweep imported items back out.
func (e *Engine) Select(ctx context.Context, target string) error {
	previous := e.registry.Current()
	if target == previous {
		e.opts.Metrics.switched("noop")
		return nil
	}

	targetID, ok := e.registry.FindFolder(target)
	if !ok {
		e.opts.Metrics.switched("error")
		return fmt.Errorf("select %q: %w", target, ErrUnknownCollection)
	}
	previousID, ok := e.registry.FindFolder(previous)
	if !ok {
		e.opts.Metrics.switched("error")
		e.log.Warn("previous collection has no storage folder",
			zap.String("previous", previous), zap.String("target", target))
		return fmt.Errorf("select %q: folder for %q missing: %w", target, previous, ErrInconsistentState)
	}
	slotID := e.registry.SlotID()

	evacuated, err := e.moveAll(ctx, slotID, previousID)
	if err != nil {
		e.opts.Metrics.switched("error")
		return fmt.Errorf("select %q: evacuate %q: %w", target, previous, err)
	}

	imported, importErr := e.moveAll(ctx, targetID, slotID)

	// Whatever reached the slot belongs to target, so the pointer follows
	// even when part of the import failed.
	if err := e.registry.SetCurrent(ctx, target); err != nil {
		e.log.Warn("pointer update failed", zap.String("target", target), zap.Error(err))
	}
	if importErr != nil {
		e.opts.Metrics.switched("error")
		return fmt.Errorf("select %q: import: %w", target, importErr)
	}
	e.registry.noteSlot(imported)

	e.opts.Metrics.switched("ok")
	e.log.Info("switched collection",
		zap.String("from", previous),
		zap.String("to", target),
		zap.Int("evacuated", len(evacuated)),
		zap.Int("imported", len(imported)))
	return nil
}

// moveAll moves every child of from into to, waits for all moves and
// returns the moved ids.
func (e *Engine) moveAll(ctx context.Context, from, to string) ([]string, error) {
	items, err := e.store.ListChildren(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", from, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MoveConcurrency)
	for _, item := range items {
		id := item.ID
		g.Go(func() error {
			if _, err := e.store.MoveNode(gctx, id, to); err != nil {
				return fmt.Errorf("move %s: %w", id, err)
			}
			e.opts.Metrics.moved()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}
