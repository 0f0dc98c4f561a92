package database

import (
	"context"
	"testing"
	"time"
)

func TestPollingFeedSignalsAndCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	feed := NewPollingFeed(10 * time.Millisecond)

	changes, err := feed.Changes(ctx)
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("Expected a poll signal")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Expected feed channel to close after cancel")
		}
	}
}

func TestSignalCoalesces(t *testing.T) {
	ch := make(chan struct{}, 1)
	signal(ch)
	signal(ch)
	if len(ch) != 1 {
		t.Errorf("Expected one pending signal, got %d", len(ch))
	}
}
