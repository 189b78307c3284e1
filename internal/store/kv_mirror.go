package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kittclouds/barswitch/pkg/mirror"
)

// KVMirror keeps the collection mirror in the store's kv table, next to
// the tree it describes.
type KVMirror struct {
	kv     *SQLiteStore
	prefix string
}

// NewKVMirror creates a mirror over s. An empty prefix uses mirror.DefaultPrefix.
func NewKVMirror(s *SQLiteStore, prefix string) *KVMirror {
	if prefix == "" {
		prefix = mirror.DefaultPrefix
	}
	return &KVMirror{kv: s, prefix: prefix}
}

func (m *KVMirror) SetCurrent(ctx context.Context, name string) error {
	return m.kv.SetKV(ctx, m.prefix+"current", name)
}

func (m *KVMirror) Current(ctx context.Context) (string, bool, error) {
	return m.kv.GetKV(ctx, m.prefix+"current")
}

func (m *KVMirror) SetNames(ctx context.Context, names []string) error {
	b, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("mirror: encode names: %w", err)
	}
	return m.kv.SetKV(ctx, m.prefix+"names", string(b))
}

func (m *KVMirror) Names(ctx context.Context) ([]string, error) {
	v, ok, err := m.kv.GetKV(ctx, m.prefix+"names")
	if err != nil || !ok {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(v), &names); err != nil {
		return nil, fmt.Errorf("mirror: decode names: %w", err)
	}
	return names, nil
}

var _ mirror.Mirror = (*KVMirror)(nil)
