package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signalled(t *testing.T, ch <-chan struct{}) bool {
	t.Helper()
	select {
	case _, ok := <-ch:
		return ok
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestNotifier_PublishReachesMatchingSubscriptions(t *testing.T) {
	n := NewNotifier()
	foodsSub := n.Subscribe("foods")
	diarySub := n.Subscribe("diary_entries")
	allSub := n.Subscribe()
	defer n.CloseAll()

	n.Publish("foods")

	assert.True(t, signalled(t, foodsSub.C()))
	assert.True(t, signalled(t, allSub.C()))

	select {
	case <-diarySub.C():
		t.Fatal("diary subscription must not fire for a foods commit")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_CoalescesPendingSignals(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe("foods")
	defer n.CloseAll()

	// Multiple publishes before the consumer reads collapse into one
	// pending signal.
	n.Publish("foods")
	n.Publish("foods")
	n.Publish("foods")

	assert.True(t, signalled(t, sub.C()))

	select {
	case <-sub.C():
		t.Fatal("expected a single coalesced signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_PublishNeverBlocks(t *testing.T) {
	n := NewNotifier()
	_ = n.Subscribe("foods") // nobody reads this one
	defer n.CloseAll()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			n.Publish("foods")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	n := NewNotifier()
	sub := n.Subscribe("foods")

	sub.Close()
	sub.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
}
