package cache

import (
	"context"
	"testing"
	"time"
)

func TestNewSweeperDefaults(t *testing.T) {
	s := New(Options{})

	sw := NewSweeper(s, 0, nil)
	if sw.interval != DefaultSweepInterval {
		t.Errorf("expected default interval %s, got %s", DefaultSweepInterval, sw.interval)
	}
	if sw.logger == nil {
		t.Error("expected fallback logger")
	}

	sw = NewSweeper(s, 5*time.Second, nil)
	if sw.interval != 5*time.Second {
		t.Errorf("expected 5s interval, got %s", sw.interval)
	}
}

func TestSweeperRemovesExpiredEntries(t *testing.T) {
	s := New(Options{})
	key := testKey("example.com")
	s.data[key] = &Entry{Key: key, ExpiresAt: time.Now().Add(-time.Minute)}

	fresh := testKey("fresh.example.com")
	if err := s.Put(fresh, nil, nil, nil, time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	sw := NewSweeper(s, 5*time.Millisecond, nil)
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for s.Len() > 1 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not remove the expired entry in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, ok := s.Get(fresh); !ok {
		t.Error("fresh entry should survive sweeping")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
