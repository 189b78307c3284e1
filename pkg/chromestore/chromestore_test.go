//go:build !js && !wasm

package chromestore

import (
	"context"
	"errors"
	"testing"
)

func TestUnsupportedOutsideBrowser(t *testing.T) {
	if _, err := New(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("New() error = %v, want ErrUnsupported", err)
	}

	var s Store
	if _, err := s.ListChildren(context.Background(), "0"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ListChildren error = %v", err)
	}
	if _, ok := <-s.Subscribe(context.Background()); ok {
		t.Error("stub subscription should be closed")
	}
}
