package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/internal/config"
	"github.com/kittclouds/barswitch/pkg/response"
	"github.com/kittclouds/barswitch/pkg/switcher"
)

func setupCLI(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	cfg = config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "data", "bookmarks.db")
	cfg.Store.PollInterval = "50ms"
	listJSON = false
	metricsAddr = ""
	return cfg.Store.Path
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := fn(cmd, args)
	return out.String(), err
}

func mustRun(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) string {
	t.Helper()
	out, err := run(t, fn, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func TestInitCreatesDatabase(t *testing.T) {
	path := setupCLI(t)

	out := mustRun(t, runInit)
	if !strings.Contains(out, `current "Default"`) {
		t.Errorf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created: %v", err)
	}

	// Second init reuses the layout.
	out = mustRun(t, runInit)
	if !strings.Contains(out, "1 bar(s)") {
		t.Errorf("init is not idempotent: %q", out)
	}
}

func TestCreateSelectItems(t *testing.T) {
	setupCLI(t)

	mustRun(t, runCreate, "Work")
	mustRun(t, runAdd, "Go", "https://go.dev")

	out := mustRun(t, runSelect, "Work")
	if !strings.Contains(out, `"Work"`) {
		t.Errorf("unexpected select output: %q", out)
	}

	if out := mustRun(t, runList); out != "  Default\n* Work\n" {
		t.Errorf("list = %q", out)
	}
	if out := mustRun(t, runItems); out != "" {
		t.Errorf("Work should be empty, got %q", out)
	}
	if out := mustRun(t, runItems, "Default"); out != "Go\thttps://go.dev\n" {
		t.Errorf("Default items = %q", out)
	}

	mustRun(t, runSelect, "Default")
	if out := mustRun(t, runItems); out != "Go\thttps://go.dev\n" {
		t.Errorf("slot items after switching back = %q", out)
	}
}

func TestCreateRejectsInvalidNames(t *testing.T) {
	setupCLI(t)

	cases := map[string]string{
		"Default":   switcher.ReasonTaken,
		"":          switcher.ReasonEmpty,
		"Per:sonal": switcher.ReasonColon,
	}
	for name, want := range cases {
		_, err := run(t, runCreate, name)
		if err == nil {
			t.Fatalf("create %q should fail", name)
		}
		if err.Error() != want {
			t.Errorf("create %q: got %q, want %q", name, err.Error(), want)
		}
	}
}

func TestSelectUnknown(t *testing.T) {
	setupCLI(t)

	if _, err := run(t, runSelect, "Nope"); err == nil {
		t.Fatal("expected error selecting an unknown bar")
	}
	if _, err := run(t, runItems, "Nope"); err == nil {
		t.Fatal("expected error listing an unknown bar")
	}
}

func TestListJSON(t *testing.T) {
	setupCLI(t)
	mustRun(t, runCreate, "Work")

	listJSON = true
	out := mustRun(t, runList)

	var got response.Collections
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if got.Current != "Default" || len(got.Bars) != 2 || got.Bars[1] != "Work" {
		t.Errorf("unexpected collections: %+v", got)
	}
}

func TestExportImport(t *testing.T) {
	setupCLI(t)
	mustRun(t, runAdd, "Go", "https://go.dev")

	backup := filepath.Join(t.TempDir(), "backup.json")
	mustRun(t, runExport, backup)

	mustRun(t, runCreate, "Scratch")
	mustRun(t, runImport, backup)

	if out := mustRun(t, runList); out != "* Default\n" {
		t.Errorf("list after import = %q", out)
	}
	if out := mustRun(t, runItems); out != "Go\thttps://go.dev\n" {
		t.Errorf("items after import = %q", out)
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	setupCLI(t)
	mustRun(t, runInit)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runWatch(cmd, nil) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
