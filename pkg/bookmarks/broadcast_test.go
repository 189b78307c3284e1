package bookmarks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBroadcasterDeliversInOrder(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	// Publishing more than any channel buffer must never block.
	for i := 0; i < 100; i++ {
		b.Publish(Event{Kind: EventChanged, ID: "n", Title: string(rune('a' + i%26))})
	}
	for i := 0; i < 100; i++ {
		ev := recv(t, ch)
		assert.Equal(t, string(rune('a'+i%26)), ev.Title)
	}
}

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := b.Subscribe(ctx)
	c := b.Subscribe(ctx)

	b.Publish(Event{Kind: EventRemoved, ID: "7"})
	assert.Equal(t, "7", recv(t, a).ID)
	assert.Equal(t, "7", recv(t, c).ID)
}

func TestBroadcasterClosesOnCancel(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(context.Background())
	b.Close()

	for range ch {
	}

	late := b.Subscribe(context.Background())
	_, ok := <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")
}
