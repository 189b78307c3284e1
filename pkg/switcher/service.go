// Package switcher keeps several named collections of bookmarks and swaps
// one of them at a time into the host's bookmarks bar.
//
// Each collection has a storage folder under a collections root. The
// collection currently shown lives in the bar and its storage folder stays
// empty. A pointer bookmark next to the storage folders records which
// collection that is, so the state survives restarts and replication.
package switcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// Service is the entry point used by the CLI and the extension bridge.
// Every operation and every reconciler handler runs under one lock, so
// they never interleave.
type Service struct {
	store bookmarks.Store
	opts  Options
	log   *zap.Logger

	opMu       sync.Mutex
	registry   *Registry
	engine     *Engine
	builder    *Builder
	reconciler *Reconciler
}

// New wires a service over store. Call Bootstrap before anything else.
func New(store bookmarks.Store, opts Options) *Service {
	opts = opts.withDefaults()
	registry := NewRegistry(store, opts)
	engine := NewEngine(store, registry, opts)
	builder := NewBuilder(store, registry, opts)
	return &Service{
		store:      store,
		opts:       opts,
		log:        opts.Logger.Named("switcher"),
		registry:   registry,
		engine:     engine,
		builder:    builder,
		reconciler: NewReconciler(store, registry, engine, builder, opts),
	}
}

// Registry exposes the metadata registry for read-only inspection.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Bootstrap locates or creates the collections root and loads the
// registry. Later calls only reload.
func (s *Service) Bootstrap(ctx context.Context) (*Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, _, err := s.builder.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return s.refresh(ctx)
}

// ListCollections reloads the registry from the store and returns the
// collection names and the current one.
func (s *Service) ListCollections(ctx context.Context) (*Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.registry.RootID() == "" {
		return nil, ErrNotBootstrapped
	}
	return s.refresh(ctx)
}

// Select makes name the current collection.
func (s *Service) Select(ctx context.Context, name string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.registry.RootID() == "" {
		return ErrNotBootstrapped
	}
	return s.engine.Select(ctx, name)
}

// CreateCollection adds an empty collection. Rejections are *ValidationError.
func (s *Service) CreateCollection(ctx context.Context, name string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	rootID := s.registry.RootID()
	if rootID == "" {
		return ErrNotBootstrapped
	}
	if _, err := createCollection(ctx, s.store, s.registry, rootID, name); err != nil {
		return err
	}
	s.log.Info("collection created", zap.String("collection", name))
	_, err := s.refresh(ctx)
	return err
}

// Run feeds store notifications to the reconciler until ctx is done.
// Echoes of writes made before the subscription are forgotten since they
// will never arrive.
func (s *Service) Run(ctx context.Context) error {
	s.opMu.Lock()
	s.registry.resetEchoes()
	events := s.store.Subscribe(ctx)
	s.opMu.Unlock()
	return s.Serve(ctx, events)
}

// Serve reconciles events from an existing subscription until ctx is done
// or events is closed. Handler errors are logged; the loop keeps going.
func (s *Service) Serve(ctx context.Context, events <-chan bookmarks.Event) error {
	s.log.Debug("reconciler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Service) handle(ctx context.Context, ev bookmarks.Event) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.reconciler.Handle(ctx, ev); err != nil {
		s.log.Warn("reconcile failed",
			zap.Stringer("kind", ev.Kind), zap.String("id", ev.ID), zap.Error(err))
	}
}

func (s *Service) refresh(ctx context.Context) (*Snapshot, error) {
	return s.reconciler.Refresh(ctx)
}
