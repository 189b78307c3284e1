package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/kittclouds/barswitch/pkg/bookmarks"
	"github.com/kittclouds/barswitch/pkg/switcher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitEvent(t *testing.T, ch <-chan bookmarks.Event) bookmarks.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return bookmarks.Event{}
}

func titles(t *testing.T, s *SQLiteStore, parentID string) []string {
	t.Helper()
	nodes, err := s.ListChildren(context.Background(), parentID)
	if err != nil {
		t.Fatalf("ListChildren(%s): %v", parentID, err)
	}
	var out []string
	for i, n := range nodes {
		if n.Index != i {
			t.Errorf("node %s: index %d at position %d", n.Title, n.Index, i)
		}
		out = append(out, n.Title)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeededLayout(t *testing.T) {
	s := newStore(t)
	got := titles(t, s, bookmarks.RootID)
	if !equal(got, []string{"Bookmarks bar", "Other bookmarks"}) {
		t.Fatalf("root children = %v", got)
	}
}

func TestCreateMoveList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	folder, err := s.CreateNode(ctx, OtherID, "Work", "")
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		n, err := s.CreateNode(ctx, BarID, title, "https://example.com/"+title)
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		ids = append(ids, n.ID)
	}

	moved, err := s.MoveNode(ctx, ids[0], folder.ID)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.ParentID != folder.ID || moved.Index != 0 {
		t.Errorf("moved = %+v", moved)
	}
	if _, err := s.MoveNode(ctx, ids[2], folder.ID); err != nil {
		t.Fatalf("move: %v", err)
	}

	if got := titles(t, s, BarID); !equal(got, []string{"b"}) {
		t.Errorf("bar = %v", got)
	}
	if got := titles(t, s, folder.ID); !equal(got, []string{"a", "c"}) {
		t.Errorf("folder = %v", got)
	}

	// Moving back appends after existing children.
	if _, err := s.MoveNode(ctx, ids[0], BarID); err != nil {
		t.Fatalf("move back: %v", err)
	}
	if got := titles(t, s, BarID); !equal(got, []string{"b", "a"}) {
		t.Errorf("bar after move back = %v", got)
	}
}

func TestInvalidOperations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	parent, _ := s.CreateNode(ctx, OtherID, "p", "")
	child, _ := s.CreateNode(ctx, parent.ID, "c", "")
	item, _ := s.CreateNode(ctx, BarID, "i", "https://example.com")

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"create under root", second(s.CreateNode(ctx, bookmarks.RootID, "x", "")), bookmarks.ErrInvalidNode},
		{"create under item", second(s.CreateNode(ctx, item.ID, "x", "")), bookmarks.ErrInvalidNode},
		{"create under missing", second(s.CreateNode(ctx, "missing", "x", "")), bookmarks.ErrNotFound},
		{"move into own subtree", second(s.MoveNode(ctx, parent.ID, child.ID)), bookmarks.ErrInvalidNode},
		{"move fixed", second(s.MoveNode(ctx, BarID, parent.ID)), bookmarks.ErrInvalidNode},
		{"update fixed", second(s.UpdateNode(ctx, OtherID, "x")), bookmarks.ErrInvalidNode},
		{"update missing", second(s.UpdateNode(ctx, "missing", "x")), bookmarks.ErrNotFound},
		{"remove fixed", s.RemoveNode(ctx, BarID), bookmarks.ErrInvalidNode},
		{"remove missing", s.RemoveNode(ctx, "missing"), bookmarks.ErrNotFound},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, tc.err, tc.want)
		}
	}
}

func second(_ *bookmarks.Node, err error) error { return err }

func TestNotifications(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Subscribe(ctx)

	folder, _ := s.CreateNode(ctx, OtherID, "Work", "")
	s.CreateNode(ctx, folder.ID, "nested", "")

	if _, err := s.UpdateNode(ctx, folder.ID, "Home"); err != nil {
		t.Fatalf("update: %v", err)
	}
	ev := waitEvent(t, events)
	if ev.Kind != bookmarks.EventChanged || ev.ID != folder.ID || ev.Title != "Home" {
		t.Fatalf("change event = %+v", ev)
	}

	if err := s.RemoveNode(ctx, folder.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ev = waitEvent(t, events)
	if ev.Kind != bookmarks.EventRemoved || ev.ID != folder.ID || ev.ParentID != OtherID {
		t.Fatalf("remove event = %+v", ev)
	}

	// The nested folder goes with its parent without a notification of its own.
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	if got := titles(t, s, OtherID); len(got) != 0 {
		t.Errorf("other bookmarks = %v", got)
	}
}

func TestSearchByTitlePrefix(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	s.CreateNode(ctx, OtherID, "CurrentBB:Work", "http://zoeetrope.com/en/bbs")
	s.CreateNode(ctx, OtherID, "CurrentBBWork", "")
	s.CreateNode(ctx, BarID, "50% off", "https://example.com")
	s.CreateNode(ctx, BarID, "500 things", "https://example.com")

	got, err := s.SearchByTitlePrefix(ctx, "CurrentBB:")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "CurrentBB:Work" {
		t.Errorf("search CurrentBB: = %+v", got)
	}

	got, _ = s.SearchByTitlePrefix(ctx, "50%")
	if len(got) != 1 || got[0].Title != "50% off" {
		t.Errorf("search 50%% = %+v", got)
	}
}

func TestOutOfBandEditSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.db")
	s, err := Open(path, WithPollInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	node, _ := s.CreateNode(ctx, BarID, "a", "https://example.com")
	events := s.Subscribe(ctx)

	other, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open second connection: %v", err)
	}
	defer other.Close()
	if _, err := other.Exec(`UPDATE nodes SET title = 'b' WHERE id = ?`, node.ID); err != nil {
		t.Fatalf("out-of-band update: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Kind != bookmarks.EventChanged || ev.ID != node.ID || ev.Title != "b" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestJournalRetention(t *testing.T) {
	s := newStore(t, WithJournalRetention(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Subscribe(ctx)

	n, _ := s.CreateNode(ctx, BarID, "a", "https://example.com")
	for i := 0; i < 5; i++ {
		s.UpdateNode(ctx, n.ID, "a")
		waitEvent(t, events)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int
		s.mu.RLock()
		err := s.db.QueryRow(`SELECT COUNT(*) FROM node_events`).Scan(&count)
		s.mu.RUnlock()
		if err != nil {
			t.Fatalf("count journal: %v", err)
		}
		if count <= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal has %d rows, want <= 2", count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExportImport(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	folder, _ := s.CreateNode(ctx, OtherID, "BookmarkBars", "")
	s.CreateNode(ctx, folder.ID, "Work", "")
	s.CreateNode(ctx, BarID, "a", "https://example.com/a")
	if err := s.SetKV(ctx, "barswitch:current", "Work"); err != nil {
		t.Fatalf("set kv: %v", err)
	}

	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	s2 := newStore(t)
	if err := s2.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if got := titles(t, s2, BarID); !equal(got, []string{"a"}) {
		t.Errorf("bar = %v", got)
	}
	if got := titles(t, s2, folder.ID); !equal(got, []string{"Work"}) {
		t.Errorf("collections root = %v", got)
	}
	v, ok, err := s2.GetKV(ctx, "barswitch:current")
	if err != nil || !ok || v != "Work" {
		t.Errorf("kv = %q %v %v", v, ok, err)
	}
}

func TestKVMirror(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	m := NewKVMirror(s, "")

	if _, ok, err := m.Current(ctx); err != nil || ok {
		t.Fatalf("empty mirror: ok=%v err=%v", ok, err)
	}
	if err := m.SetCurrent(ctx, "Work"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if err := m.SetNames(ctx, []string{"Default", "Work"}); err != nil {
		t.Fatalf("SetNames: %v", err)
	}

	name, ok, err := m.Current(ctx)
	if err != nil || !ok || name != "Work" {
		t.Errorf("Current = %q %v %v", name, ok, err)
	}
	names, err := m.Names(ctx)
	if err != nil || !equal(names, []string{"Default", "Work"}) {
		t.Errorf("Names = %v %v", names, err)
	}
}

func TestSwitcherOverSQLite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	svc := switcher.New(s, switcher.Options{Mirror: NewKVMirror(s, "")})
	if _, err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	s.CreateNode(ctx, BarID, "a", "https://example.com/a")
	if err := svc.CreateCollection(ctx, "Work"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Select(ctx, "Work"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if got := titles(t, s, BarID); len(got) != 0 {
		t.Errorf("bar = %v", got)
	}
	defaultID, _ := svc.Registry().FindFolder("Default")
	if got := titles(t, s, defaultID); !equal(got, []string{"a"}) {
		t.Errorf("default folder = %v", got)
	}

	snap, err := svc.ListCollections(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if snap.Current != "Work" || !equal(snap.Names, []string{"Default", "Work"}) {
		t.Errorf("snapshot = %+v", snap)
	}
	if name, _, _ := NewKVMirror(s, "").Current(ctx); name != "Work" {
		t.Errorf("mirrored current = %q", name)
	}
}

func TestSwitchByAnotherClientIsAdopted(t *testing.T) {
	cases := []struct {
		name string
		bar  []string
	}{
		{"previous has items", []string{"a"}},
		{"previous empty", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bookmarks.db")
			open := func() *SQLiteStore {
				s, err := Open(path, WithPollInterval(20*time.Millisecond))
				if err != nil {
					t.Fatalf("open: %v", err)
				}
				t.Cleanup(func() { s.Close() })
				return s
			}
			a, b := open(), open()
			ctx := context.Background()

			svcA := switcher.New(a, switcher.Options{})
			if _, err := svcA.Bootstrap(ctx); err != nil {
				t.Fatalf("bootstrap A: %v", err)
			}
			svcB := switcher.New(b, switcher.Options{})
			if _, err := svcB.Bootstrap(ctx); err != nil {
				t.Fatalf("bootstrap B: %v", err)
			}

			for _, title := range tc.bar {
				a.CreateNode(ctx, BarID, title, "https://example.com/"+title)
			}
			if err := svcA.CreateCollection(ctx, "Work"); err != nil {
				t.Fatalf("create: %v", err)
			}
			workID, _ := svcA.Registry().FindFolder("Work")
			a.CreateNode(ctx, workID, "c", "https://example.com/c")

			runCtx, cancel := context.WithCancel(ctx)
			events := b.Subscribe(runCtx)
			done := make(chan error, 1)
			go func() { done <- svcB.Serve(runCtx, events) }()
			defer func() {
				cancel()
				<-done
			}()

			if err := svcA.Select(ctx, "Work"); err != nil {
				t.Fatalf("select: %v", err)
			}

			deadline := time.Now().Add(3 * time.Second)
			for svcB.Registry().Current() != "Work" {
				if time.Now().After(deadline) {
					t.Fatalf("B current = %q, want Work", svcB.Registry().Current())
				}
				time.Sleep(10 * time.Millisecond)
			}

			if got := titles(t, a, BarID); !equal(got, []string{"c"}) {
				t.Errorf("bar = %v, want [c]", got)
			}
			defaultID, _ := svcA.Registry().FindFolder("Default")
			if got := titles(t, a, defaultID); !equal(got, tc.bar) {
				t.Errorf("default folder = %v, want %v", got, tc.bar)
			}
			if got := titles(t, a, workID); len(got) != 0 {
				t.Errorf("work folder = %v, want empty", got)
			}
		})
	}
}
