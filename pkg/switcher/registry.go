package switcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
)

// EntryKind classifies a child of the collections root.
type EntryKind int

const (
	EntryOther EntryKind = iota
	EntryPointer
	EntryFolder
)

func (k EntryKind) String() string {
	switch k {
	case EntryPointer:
		return "pointer"
	case EntryFolder:
		return "folder"
	default:
		return "other"
	}
}

// Entry is a classified child of the collections root. Name is the
// collection name for folders and the encoded name for pointers.
type Entry struct {
	Kind EntryKind
	Node *bookmarks.Node
	Name string
}

// Folder is a collection's storage folder.
type Folder struct {
	ID   string
	Name string
}

// Snapshot is the result of a reload: collection names in store order and
// the name of the collection materialized in the active slot.
type Snapshot struct {
	Names   []string `json:"names"`
	Current string   `json:"current"`
}

type echoKey struct {
	id    string
	title string
}

// Registry owns the name -> folder mapping and the current-collection
// pointer. It is rebuilt from the store by Reload.
type Registry struct {
	store      bookmarks.Store
	opts       Options
	log        *zap.Logger
	pointerURL string

	mu        sync.RWMutex
	rootID    string
	slotID    string
	current   string
	pointerID string
	folders   []Folder
	surplus   []string
	echoes    map[echoKey]int

	// adopted is set once the pointer name has been read. Later pointer
	// names that differ from current are parked in drift for the
	// reconciler instead of being assigned.
	adopted bool
	drift   string
	// stale marks a pointer whose last write failed.
	stale bool
	// slotSeen holds the active slot's item ids as last observed.
	slotSeen map[string]struct{}
}

// NewRegistry creates a registry whose last-known current name is the
// default collection.
func NewRegistry(store bookmarks.Store, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		store:      store,
		opts:       opts,
		log:        opts.Logger.Named("registry"),
		pointerURL: opts.PointerURL,
		current:    opts.DefaultName,
		echoes:     make(map[echoKey]int),
	}
}

// Classify tags each node once so no other component string-matches titles.
// A folder carrying a pointer title is neither a pointer nor a collection.
func (r *Registry) Classify(nodes []*bookmarks.Node) []Entry {
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		if name, ok := r.opts.Codec.ParsePointer(n.Title); ok {
			if n.IsFolder() {
				out = append(out, Entry{Kind: EntryOther, Node: n})
			} else {
				out = append(out, Entry{Kind: EntryPointer, Node: n, Name: name})
			}
			continue
		}
		if n.IsFolder() {
			out = append(out, Entry{Kind: EntryFolder, Node: n, Name: n.Title})
			continue
		}
		out = append(out, Entry{Kind: EntryOther, Node: n})
	}
	return out
}

// Reload lists the collections root once and rebuilds the folder map. The
// first reload takes the current name from the pointer; afterwards a pointer
// naming another collection is left for the reconciler (see Drift) since
// assigning it would relabel the slot without moving anything. A missing
// pointer is recreated from the last-known current name.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	r.mu.RLock()
	rootID := r.rootID
	r.mu.RUnlock()
	if rootID == "" {
		return nil, ErrNotBootstrapped
	}

	children, err := r.store.ListChildren(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("reload: list collections root: %w", err)
	}
	r.opts.Metrics.reloaded()

	var (
		folders     []Folder
		surplus     []string
		pointerID   string
		pointerName string
	)
	for _, e := range r.Classify(children) {
		switch e.Kind {
		case EntryPointer:
			if pointerID == "" {
				pointerID, pointerName = e.Node.ID, e.Name
			} else {
				surplus = append(surplus, e.Node.ID)
			}
		case EntryFolder:
			folders = append(folders, Folder{ID: e.Node.ID, Name: e.Name})
		}
	}

	r.mu.Lock()
	r.folders = folders
	r.surplus = surplus
	r.pointerID = pointerID
	r.drift = ""
	switch {
	case pointerName == "":
	case !r.adopted:
		r.current = pointerName
	case pointerName == r.current:
		r.stale = false
	case !r.stale:
		r.drift = pointerName
	}
	r.adopted = true
	current, drift, stale := r.current, r.drift, r.stale
	r.mu.Unlock()

	if len(surplus) > 0 {
		r.log.Warn("duplicate pointer records", zap.Int("surplus", len(surplus)))
	}

	switch {
	case pointerID == "":
		r.log.Warn("pointer record missing, recreating", zap.String("current", current))
		if err := r.createPointer(ctx, rootID, current); err != nil {
			return nil, err
		}
	case pointerName == "":
		r.log.Warn("pointer record has no name, rewriting", zap.String("current", current))
		if err := r.writePointer(ctx, pointerID, current); err != nil {
			return nil, err
		}
	case stale && pointerName != current:
		r.log.Warn("retrying failed pointer write", zap.String("current", current))
		if err := r.writePointer(ctx, pointerID, current); err != nil {
			return nil, err
		}
	case drift != "":
		r.log.Info("pointer names another collection", zap.String("pointer", drift), zap.String("current", current))
	}

	if drift == "" {
		if err := r.observeSlot(ctx); err != nil {
			return nil, err
		}
	}

	names := make([]string, len(folders))
	known := false
	for i, f := range folders {
		names[i] = f.Name
		known = known || f.Name == current
	}
	if !known {
		r.log.Warn("current collection has no storage folder", zap.String("current", current))
	}

	r.mirror(ctx, current, names)
	return &Snapshot{Names: names, Current: current}, nil
}

// observeSlot records which items the active slot holds right now.
func (r *Registry) observeSlot(ctx context.Context) error {
	slotID := r.SlotID()
	if slotID == "" {
		return nil
	}
	items, err := r.store.ListChildren(ctx, slotID)
	if err != nil {
		return fmt.Errorf("reload: list active slot: %w", err)
	}
	ids := make([]string, len(items))
	for i, n := range items {
		ids[i] = n.ID
	}
	r.noteSlot(ids)
	return nil
}

func (r *Registry) noteSlot(ids []string) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	r.mu.Lock()
	r.slotSeen = seen
	r.mu.Unlock()
}

// slotKnown reports whether any of items was in the slot when it was last
// observed.
func (r *Registry) slotKnown(items []*bookmarks.Node) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range items {
		if _, ok := r.slotSeen[n.ID]; ok {
			return true
		}
	}
	return false
}

// Drift returns the collection named by the pointer when the last Reload
// found it disagreeing with the current name.
func (r *Registry) Drift() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.drift, r.drift != ""
}

func (r *Registry) clearDrift() {
	r.mu.Lock()
	r.drift = ""
	r.mu.Unlock()
}

func (r *Registry) createPointer(ctx context.Context, rootID, name string) error {
	n, err := r.store.CreateNode(ctx, rootID, r.opts.Codec.Pointer(name), r.pointerURL)
	if err != nil {
		return fmt.Errorf("reload: create pointer: %w", err)
	}
	r.mu.Lock()
	if r.pointerID == "" {
		r.pointerID = n.ID
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) mirror(ctx context.Context, current string, names []string) {
	if err := r.opts.Mirror.SetCurrent(ctx, current); err != nil {
		r.log.Debug("mirror current failed", zap.Error(err))
	}
	if err := r.opts.Mirror.SetNames(ctx, names); err != nil {
		r.log.Debug("mirror names failed", zap.Error(err))
	}
}

// SetCurrent records name as current immediately, then rewrites the pointer
// title. Interleaved operations see the new name before the write lands.
func (r *Registry) SetCurrent(ctx context.Context, name string) error {
	r.mu.Lock()
	r.current = name
	pointerID := r.pointerID
	r.mu.Unlock()

	if pointerID == "" {
		// Reload recreates the pointer from the in-memory name.
		return nil
	}
	if err := r.writePointer(ctx, pointerID, name); err != nil {
		return err
	}
	if err := r.opts.Mirror.SetCurrent(ctx, name); err != nil {
		r.log.Debug("mirror current failed", zap.Error(err))
	}
	return nil
}

// writePointer retitles the pointer unless it already reads name. Hosts do
// not report a retitle to the same title, so no echo is expected then.
func (r *Registry) writePointer(ctx context.Context, pointerID, name string) error {
	title := r.opts.Codec.Pointer(name)
	if live, ok, err := r.PointerTitle(ctx, pointerID); err == nil && ok && live == title {
		r.setStale(false)
		return nil
	}

	r.ExpectEcho(pointerID, title)
	if _, err := r.store.UpdateNode(ctx, pointerID, title); err != nil {
		r.ConsumeEcho(pointerID, title)
		r.setStale(true)
		return fmt.Errorf("write pointer %q: %w", title, err)
	}
	r.setStale(false)
	return nil
}

func (r *Registry) setStale(v bool) {
	r.mu.Lock()
	r.stale = v
	r.mu.Unlock()
}

// PointerTitle reads the stored title of pointer record id. ok is false
// when no such record sits under the collections root.
func (r *Registry) PointerTitle(ctx context.Context, id string) (title string, ok bool, err error) {
	rootID := r.RootID()
	if rootID == "" || id == "" {
		return "", false, nil
	}
	children, err := r.store.ListChildren(ctx, rootID)
	if err != nil {
		return "", false, fmt.Errorf("read pointer: %w", err)
	}
	for _, n := range children {
		if n.ID == id {
			return n.Title, true, nil
		}
	}
	return "", false, nil
}

// ExpectEcho records that the store will report id retitled to title
// because this process wrote it.
func (r *Registry) ExpectEcho(id, title string) {
	r.mu.Lock()
	r.echoes[echoKey{id, title}]++
	r.mu.Unlock()
}

// ConsumeEcho reports whether a change notification is the echo of a write
// made by this process, and forgets it.
func (r *Registry) ConsumeEcho(id, title string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := echoKey{id, title}
	n := r.echoes[k]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(r.echoes, k)
	} else {
		r.echoes[k] = n - 1
	}
	return true
}

// ForgetPointer drops the cached pointer id so the next Reload recreates it.
func (r *Registry) ForgetPointer() {
	r.mu.Lock()
	r.pointerID = ""
	r.mu.Unlock()
}

// FindFolder returns the storage folder id for name.
func (r *Registry) FindFolder(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.folders {
		if f.Name == name {
			return f.ID, true
		}
	}
	return "", false
}

// FindName returns the collection name whose storage folder is id.
func (r *Registry) FindName(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.folders {
		if f.ID == id {
			return f.Name, true
		}
	}
	return "", false
}

// Folders returns a copy of the cached storage folders.
func (r *Registry) Folders() []Folder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Folder(nil), r.folders...)
}

// Current returns the in-memory current collection name.
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// PointerID returns the authoritative pointer record id, or "".
func (r *Registry) PointerID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pointerID
}

// Surplus returns pointer-shaped children found by the last Reload beyond
// the authoritative one.
func (r *Registry) Surplus() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.surplus...)
}

// RootID returns the collections root id.
func (r *Registry) RootID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rootID
}

// SlotID returns the active slot id.
func (r *Registry) SlotID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slotID
}

func (r *Registry) setRoots(rootID, slotID string) {
	r.mu.Lock()
	r.rootID = rootID
	r.slotID = slotID
	r.mu.Unlock()
}

// seedCurrent replaces the last-known current name. Only used before the
// first Reload.
func (r *Registry) seedCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
}

func (r *Registry) clearSurplus() {
	r.mu.Lock()
	r.surplus = nil
	r.mu.Unlock()
}

// resetEchoes forgets every expected echo. Writes made before a subscriber
// attached are never delivered to it.
func (r *Registry) resetEchoes() {
	r.mu.Lock()
	r.echoes = make(map[echoKey]int)
	r.mu.Unlock()
}
